package capture

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/eyediagram/internal/eye"
	"github.com/banshee-data/eyediagram/internal/fsutil"
	"github.com/google/go-cmp/cmp"
)

func TestReadText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    TextOptions
		want    []float64
		wantErr bool
	}{
		{
			name:  "one per line",
			input: "0.5\n-1\n\n2e-3\n",
			want:  []float64{0.5, -1, 0.002},
		},
		{
			name:  "comments and header",
			input: "# scope export\ntime,volts\n0,0.1\n1,0.2\n",
			opts:  TextOptions{Column: 1},
			want:  []float64{0.1, 0.2},
		},
		{
			name:  "semicolon separated",
			input: "1; 4\n2; 5\n",
			opts:  TextOptions{Column: 1, Comma: ';'},
			want:  []float64{4, 5},
		},
		{
			name:    "bad value after header",
			input:   "v\n1\nabc\n",
			wantErr: true,
		},
		{
			name:    "missing column",
			input:   "1,2\n3\n",
			opts:    TextOptions{Column: 1},
			wantErr: true,
		},
		{
			name:    "negative column",
			input:   "1\n",
			opts:    TextOptions{Column: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadText(strings.NewReader(tt.input), tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ReadText() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadText() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadText() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadText_Empty(t *testing.T) {
	_, err := ReadText(strings.NewReader("# nothing\n\n"), TextOptions{})
	if !errors.Is(err, ErrNoSamples) {
		t.Errorf("got %v, want ErrNoSamples", err)
	}
}

func TestLoadFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("captures/link.csv", []byte("t,v\n0,1.5\n1,-1.5\n"))

	got, err := LoadFile(mfs, "captures/link.csv", TextOptions{Column: 1})
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if diff := cmp.Diff([]float64{1.5, -1.5}, got); diff != "" {
		t.Errorf("LoadFile() mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadFile(mfs, "captures/missing.csv", TextOptions{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteText_RoundTrip(t *testing.T) {
	in := []float64{0, -1.25, 3e-12, 1e300, 0.1}
	var buf bytes.Buffer
	if err := WriteText(&buf, in); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if buf.String() != "0\n-1.25\n3e-12\n1e+300\n0.1\n" {
		t.Errorf("unexpected text %q", buf.String())
	}
	got, err := ReadText(&buf, TextOptions{})
	if err != nil {
		t.Fatalf("ReadText() error = %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckFinite(t *testing.T) {
	if err := CheckFinite([]float64{1.7e308, -1.7e308, 0}); err != nil {
		t.Errorf("extreme finite samples: %v", err)
	}
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := CheckFinite([]float64{0, v}); !errors.Is(err, eye.ErrNonFinite) {
			t.Errorf("CheckFinite(%v) = %v, want ErrNonFinite", v, err)
		}
	}
}
