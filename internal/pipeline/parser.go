package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

// StripFence removes a single optional fenced code block wrapper, with or without a
// language tag, around the answer.
func StripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Whatever precedes the first newline is the language tag.
		if tag := strings.TrimSpace(body[:nl]); !strings.ContainsAny(tag, "{[\"") {
			body = body[nl+1:]
		}
	} else {
		body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// Parse deserializes the service answer into a candidate decision. Any failure yields a
// ParseError carrying the raw text; fields are never extracted heuristically.
func Parse(raw string) (*models.Candidate, error) {
	text := StripFence(raw)
	if text == "" {
		return nil, parseError(raw, nil, "reasoning service returned an empty answer")
	}
	if text[0] != '{' {
		return nil, parseError(raw, nil, "reasoning service answer is not a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	var c models.Candidate
	if err := dec.Decode(&c); err != nil {
		return nil, parseError(raw, err, "failed to parse reasoning service answer as JSON")
	}
	if dec.More() {
		return nil, parseError(raw, nil, "reasoning service answer has trailing content after the JSON object")
	}
	return &c, nil
}

func parseError(raw string, err error, msg string) *PipelineError {
	e := newError(KindParse, err, "%s", msg)
	e.RawText = raw
	return e
}
