package eye

// Segment is one window of a signal as drawn by a line trace.
type Segment struct {
	// Start is the index in the source signal of Samples[0].
	Start   int
	Samples []float64
}

// Segments slices signal into consecutive windows of windowSize samples
// starting at offset. Each segment also carries the first sample of the
// next window so that adjacent traces join up; the final segment holds
// whatever remains. For offset 0 there are ceil(len/windowSize) segments.
//
// Samples alias the input slice.
func Segments(signal []float64, windowSize, offset int) ([]Segment, error) {
	if err := checkWindow(windowSize, offset); err != nil {
		return nil, err
	}
	if len(signal) == 0 {
		return nil, ErrEmptySignal
	}

	n := len(signal)
	var segs []Segment
	if offset < n {
		segs = make([]Segment, 0, CountSegments(n, windowSize, offset))
	}
	for start := offset; start < n; {
		end := start + min(windowSize, n-start)
		stop := end + 1
		if stop > n {
			stop = n
		}
		segs = append(segs, Segment{Start: start, Samples: signal[start:stop]})
		start = end
	}
	return segs, nil
}

// CountSegments returns the number of segments Segments would produce.
func CountSegments(n, windowSize, offset int) int {
	if windowSize <= 0 || offset < 0 || offset >= n {
		return 0
	}
	return (n-offset-1)/windowSize + 1
}
