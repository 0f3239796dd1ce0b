package capture

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakePort struct {
	io.Reader
	closed bool
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestPortOptions_Normalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	opts, err = PortOptions{BaudRate: 9600, Parity: "even", StopBits: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", opts.Parity)

	for _, bad := range []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 57600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

func TestRecordSerial_ReadsUntilEOF(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("0.1\r\nboot ok\n0.2, 0.3\n\n-0.4\n")}
	got, err := RecordSerial(context.Background(), port, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, -0.4}, got)
}

func TestRecordSerial_SkipsNonFinite(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("1\nNaN\n+Inf\n2, -inf\n1e400\n3\n")}
	got, err := RecordSerial(context.Background(), port, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, got)
}

func TestRecordSerial_StopsAtLimit(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("1\n2\n3\n4\n5\n")}
	got, err := RecordSerial(context.Background(), port, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestRecordSerial_NoSamples(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("hello\n")}
	_, err := RecordSerial(context.Background(), port, 0)
	assert.True(t, errors.Is(err, ErrNoSamples))
}

func TestRecordSerial_Cancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	port := &fakePort{Reader: r}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var got []float64
	var err error
	go func() {
		defer close(done)
		got, err = RecordSerial(ctx, port, 0)
	}()

	_, _ = io.WriteString(w, "7\n8\n")
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordSerial did not return after cancel")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float64{7, 8}, got)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestRecordSerial_ReadError(t *testing.T) {
	_, err := RecordSerial(context.Background(), &fakePort{Reader: errReader{}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}
