package store

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeSpec is a parsed byte-range request. Start and End are inclusive
// offsets; End is -1 for the open-ended "start-" form. In the suffix form
// ("-N"), Suffix is true and Start holds the suffix length N.
type RangeSpec struct {
	Start  int64
	End    int64
	Suffix bool
}

// ParseRange parses a "bytes=..." range header into a RangeSpec. Only a
// single range is supported; anything malformed fails with ErrInvalidRange.
func ParseRange(spec string) (*RangeSpec, error) {
	rest, ok := strings.CutPrefix(spec, "bytes=")
	if !ok || strings.Contains(rest, ",") {
		return nil, fmt.Errorf("range %q: %w", spec, ErrInvalidRange)
	}

	first, last, ok := strings.Cut(rest, "-")
	if !ok {
		return nil, fmt.Errorf("range %q: %w", spec, ErrInvalidRange)
	}

	// Suffix form: "-N" reads the last N bytes.
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("range %q: %w", spec, ErrInvalidRange)
		}
		return &RangeSpec{Start: n, End: -1, Suffix: true}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("range %q: %w", spec, ErrInvalidRange)
	}

	if last == "" {
		return &RangeSpec{Start: start, End: -1}, nil
	}

	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return nil, fmt.Errorf("range %q: %w", spec, ErrInvalidRange)
	}

	return &RangeSpec{Start: start, End: end}, nil
}

// Resolve validates the spec against an object of the given size and
// returns the effective start offset and length. A start at or beyond the
// object size is unsatisfiable; an end beyond the last byte is clamped.
func (r *RangeSpec) Resolve(size int64) (start int64, length int64, err error) {
	if r.Suffix {
		n := min(r.Start, size)
		if n == 0 {
			return 0, 0, fmt.Errorf("suffix range of empty object: %w", ErrInvalidRange)
		}
		return size - n, n, nil
	}

	if r.Start >= size {
		return 0, 0, fmt.Errorf("range start %d beyond size %d: %w", r.Start, size, ErrInvalidRange)
	}

	end := r.End
	if end < 0 || end > size-1 {
		end = size - 1
	}

	return r.Start, end - r.Start + 1, nil
}
