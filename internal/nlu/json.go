package nlu

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// fenceRe matches markdown code fences around a JSON payload.
var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// DecodeJSON decodes a provider message into v. Providers routinely wrap
// payloads in code fences, add prose around them, or emit slightly broken
// JSON; decoding strips fences, isolates the outermost object, and falls
// back to jsonrepair before giving up.
func DecodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	// Isolate the outermost JSON object when prose surrounds it.
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		candidate := s[start : end+1]
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
		s = candidate
	}

	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
