// Package chunk splits article text into overlapping fixed-size spans.
package chunk

import "fmt"

// Splitter cuts text into windows of Size runes, each starting Size-Overlap
// runes after the previous one.
type Splitter struct {
	size    int
	overlap int
}

// New validates the window and returns a Splitter.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split returns the spans of text in source order. Empty text yields no spans;
// the last span may be shorter than the window.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := s.size - s.overlap
	var spans []string
	for start := 0; ; start += step {
		end := min(start+s.size, len(runes))
		spans = append(spans, string(runes[start:end]))
		if end == len(runes) {
			return spans
		}
	}
}

// Count returns how many spans Split produces for text of n runes.
func (s *Splitter) Count(n int) int {
	if n <= 0 {
		return 0
	}
	step := s.size - s.overlap
	count := (max(n-s.overlap, 0) + step - 1) / step
	return max(count, 1)
}
