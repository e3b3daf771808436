package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
)

// strategy is one way of reading a model answer. Strategies are tried in
// order until one returns ok.
type strategy[T any] struct {
	name string
	try  func(raw string) (T, bool)
}

func firstMatch[T any](raw string, strategies []strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if v, ok := s.try(raw); ok {
			return v, s.name, true
		}
	}
	var zero T
	return zero, "", false
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// jsonStrategies decodes the raw answer, the body of a fenced block and the
// outermost braces slice, in that order.
func jsonStrategies[T any](accept func(T) bool) []strategy[T] {
	decode := func(s string) (T, bool) {
		var v T
		s = strings.TrimSpace(s)
		if s == "" {
			return v, false
		}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return v, false
		}
		return v, accept(v)
	}
	return []strategy[T]{
		{name: "direct", try: decode},
		{name: "fenced", try: func(raw string) (T, bool) {
			m := fencePattern.FindStringSubmatch(raw)
			if m == nil {
				var zero T
				return zero, false
			}
			return decode(m[1])
		}},
		{name: "embedded_object", try: func(raw string) (T, bool) {
			return decode(extractJSONObject(raw))
		}},
	}
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
