// File: internal/oracle/arguments.go
package oracle

import (
	"fmt"
	"regexp"
	"strings"
)

// fencedObject matches a JSON object inside a markdown code fence. Some
// OpenAI compatible servers wrap tool arguments this way.
var fencedObject = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\{.*\\})\\s*\x60\x60\x60")

// parseArguments decodes the JSON object carried by a tool call. Markdown
// fences and surrounding prose are stripped first. Empty input yields an
// empty map.
func parseArguments(raw string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return args, nil
	}

	switch {
	case strings.HasPrefix(candidate, "```"):
		if m := fencedObject.FindStringSubmatch(candidate); len(m) > 1 {
			candidate = m[1]
		}
	case !strings.HasPrefix(candidate, "{"):
		first, last := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}")
		if first != -1 && last > first {
			candidate = candidate[first : last+1]
		}
	}

	if err := jsonCodec.Unmarshal([]byte(candidate), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w (got %q)", err, truncate(candidate, 200))
	}
	return args, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
