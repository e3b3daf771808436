package textwindow

import "strings"

const (
	DefaultWindow  = 12000
	DefaultOverlap = 400
)

// Splitter cuts extracted sheet text into windows of at most Window runes.
// Cuts prefer the last line break inside a window so table rows such as
// "Busto: 92 cm" are not split across prompts.
type Splitter struct {
	Window  int
	Overlap int
}

func NewSplitter(window, overlap int) *Splitter {
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		overlap = window / 4
	}
	return &Splitter{Window: window, Overlap: overlap}
}

// Split returns nil for blank text and a single window when the text fits.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.Window {
		return []string{string(runes)}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + s.Window
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastBreak(runes[start:end]); cut > s.Overlap {
			end = start + cut
		}
		if window := strings.TrimSpace(string(runes[start:end])); window != "" {
			out = append(out, window)
		}
		if end == len(runes) {
			break
		}
		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// lastBreak is the index just past the last newline in the second half of
// window, or 0 when there is none.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= len(window)/2; i-- {
		if window[i] == '\n' {
			return i + 1
		}
	}
	return 0
}
