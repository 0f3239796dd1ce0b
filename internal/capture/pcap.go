package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Encoding names the on-the-wire layout of samples in a UDP payload.
type Encoding string

const (
	EncodingS16LE Encoding = "s16le"
	EncodingF32LE Encoding = "f32le"
	EncodingF64LE Encoding = "f64le"
)

// Width returns the size in bytes of one sample.
func (e Encoding) Width() (int, error) {
	switch e {
	case EncodingS16LE:
		return 2, nil
	case EncodingF32LE:
		return 4, nil
	case EncodingF64LE:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported sample encoding %q", e)
	}
}

// PCAPOptions controls ReadPCAP.
type PCAPOptions struct {
	// Port selects UDP datagrams whose source or destination port matches.
	// Zero accepts every UDP datagram.
	Port     int
	Encoding Encoding
	// Scale multiplies every decoded sample. Zero means 1.
	Scale float64
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// ReadPCAP extracts samples from the UDP payloads in a pcap or pcapng
// stream, in capture order.
func ReadPCAP(r io.Reader, opts PCAPOptions) ([]float64, error) {
	if opts.Encoding == "" {
		opts.Encoding = EncodingS16LE
	}
	width, err := opts.Encoding.Width()
	if err != nil {
		return nil, err
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	br := bufio.NewReader(r)
	var pr packetReader
	if magic, err := br.Peek(4); err == nil && bytes.Equal(magic, pcapngMagic) {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcapng stream: %w", err)
		}
	} else {
		pr, err = pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcap stream: %w", err)
		}
	}

	var (
		samples     []float64
		packetCount int
		udpCount    int
		ragged      int
	)
	for {
		data, _, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read packet %d: %w", packetCount+1, err)
		}
		packetCount++

		packet := gopacket.NewPacket(data, pr.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port && int(udp.SrcPort) != opts.Port {
			continue
		}
		udpCount++

		payload := udp.Payload
		if len(payload)%width != 0 {
			ragged++
		}
		values, _ := DecodeSamples(payload, opts.Encoding)
		for _, v := range values {
			samples = append(samples, scale*v)
		}
	}

	if ragged > 0 {
		log.Printf("capture: %d datagrams had trailing bytes shorter than a %s sample", ragged, opts.Encoding)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %d packets, %d matching UDP datagrams", ErrNoSamples, packetCount, udpCount)
	}
	return samples, nil
}

// DecodeSamples unpacks whole samples from b. Trailing bytes that do not
// make up a full sample are ignored.
func DecodeSamples(b []byte, enc Encoding) ([]float64, error) {
	width, err := enc.Width()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(b)/width)
	for i := range out {
		out[i] = decodeSample(b[i*width:(i+1)*width], enc)
	}
	return out, nil
}

func decodeSample(b []byte, enc Encoding) float64 {
	switch enc {
	case EncodingS16LE:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case EncodingF32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

// EncodeSamples packs samples into a byte slice using enc. Values are
// rounded and clamped to the int16 range when encoded as s16le.
func EncodeSamples(samples []float64, enc Encoding) ([]byte, error) {
	width, err := enc.Width()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(samples)*width)
	for i, v := range samples {
		b := out[i*width : (i+1)*width]
		switch enc {
		case EncodingS16LE:
			binary.LittleEndian.PutUint16(b, uint16(int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))))
		case EncodingF32LE:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		default:
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}
	}
	return out, nil
}
