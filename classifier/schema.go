package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"commentguard/moderation"
)

// SchemaError reports an AI response that does not match the expected
// judgment schema.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "classifier: malformed response: " + e.Reason
	}
	return fmt.Sprintf("classifier: malformed response: %s: %s", e.Field, e.Reason)
}

type judgment struct {
	IsSpam     *bool    `json:"is_spam"`
	Confidence *float64 `json:"confidence"`
	SpamType   *string  `json:"spam_type"`
	Reason     string   `json:"reason"`
	Patterns   []string `json:"detected_patterns"`
}

// ParseResponse validates raw model output and converts it to a
// classification with source ai. Unknown fields are ignored; missing,
// mistyped or inconsistent required fields are a *SchemaError.
func ParseResponse(raw string) (moderation.Classification, error) {
	body := stripFences(raw)
	if body == "" {
		return moderation.Classification{}, &SchemaError{Reason: "empty response"}
	}

	var j judgment
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&j); err != nil {
		return moderation.Classification{}, &SchemaError{Reason: err.Error()}
	}
	if dec.More() {
		return moderation.Classification{}, &SchemaError{Reason: "trailing data after JSON object"}
	}

	switch {
	case j.IsSpam == nil:
		return moderation.Classification{}, &SchemaError{Field: "is_spam", Reason: "missing"}
	case j.Confidence == nil:
		return moderation.Classification{}, &SchemaError{Field: "confidence", Reason: "missing"}
	case j.SpamType == nil:
		return moderation.Classification{}, &SchemaError{Field: "spam_type", Reason: "missing"}
	}

	conf := *j.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return moderation.Classification{}, &SchemaError{Field: "confidence", Reason: fmt.Sprintf("%v outside [0,1]", conf)}
	}
	st, ok := moderation.ParseSpamType(strings.ToLower(strings.TrimSpace(*j.SpamType)))
	if !ok {
		return moderation.Classification{}, &SchemaError{Field: "spam_type", Reason: fmt.Sprintf("unknown category %q", *j.SpamType)}
	}
	if *j.IsSpam == (st == moderation.SpamNone) {
		return moderation.Classification{}, &SchemaError{Field: "spam_type", Reason: fmt.Sprintf("%q contradicts is_spam=%v", st, *j.IsSpam)}
	}

	return moderation.Classification{
		IsSpam:     *j.IsSpam,
		Confidence: conf,
		SpamType:   st,
		Reason:     strings.TrimSpace(j.Reason),
		Patterns:   j.Patterns,
		Source:     moderation.SourceAI,
	}, nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return string(bytes.TrimSpace([]byte(s)))
}
