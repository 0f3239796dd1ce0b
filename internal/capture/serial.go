package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// SerialPorter is the part of a serial port RecordSerial needs. It lets
// tests feed lines without hardware.
type SerialPorter interface {
	io.Reader
	io.Closer
}

// PortOptions describes how to open a serial sample source.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and fills in 115200 8N1 defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}

	return mode, nil
}

// OpenSerial opens the serial device at path.
func OpenSerial(path string, opts PortOptions) (serial.Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// RecordSerial reads newline-terminated samples from port until limit
// samples have been collected (limit <= 0 means no limit), the port reaches
// EOF, or ctx is cancelled. Lines that do not parse as a number are logged
// and skipped, as are lines holding NaN or Inf; a line may carry several
// comma- or space-separated values.
//
// On cancellation the samples read so far are returned with ctx.Err().
func RecordSerial(ctx context.Context, port SerialPorter, limit int) ([]float64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scan := bufio.NewScanner(port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The scanner blocks in Read, so it runs on its own goroutine and the
	// loop below stays responsive to cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	var samples []float64
	skipped := 0
	for {
		select {
		case <-ctx.Done():
			return samples, ctx.Err()

		case err := <-scanErrChan:
			return samples, fmt.Errorf("serial read failed: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return samples, fmt.Errorf("serial read failed: %w", err)
				default:
				}
				if len(samples) == 0 {
					return nil, ErrNoSamples
				}
				return samples, nil
			}

			values, err := parseSampleLine(line)
			if err != nil {
				skipped++
				log.Printf("capture: skipping serial line %q: %v", line, err)
				continue
			}
			for _, v := range values {
				samples = append(samples, v)
				if limit > 0 && len(samples) >= limit {
					if skipped > 0 {
						log.Printf("capture: skipped %d unparsable serial lines", skipped)
					}
					return samples, nil
				}
			}
		}
	}
}

func parseSampleLine(line string) ([]float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty line")
	}
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite sample %q", f)
		}
		values = append(values, v)
	}
	return values, nil
}
