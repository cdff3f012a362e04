// Package parser turns raw model output into structured records.
package parser

import (
	"bytes"
	"encoding/json"

	"github.com/yanivvds/portfolio-assistant/internal/model"
)

// wireRecord mirrors the record wire shape with fields that can detect absence.
type wireRecord struct {
	Response           *string                   `json:"response"`
	FollowUpQuestions  []string                  `json:"followUpQuestions"`
	InteractiveElement *model.InteractiveElement `json:"interactiveElement"`
}

// Decode strictly decodes raw as a structured record. It reports false when raw
// is not a JSON object, lacks a string "response", or has mistyped fields.
// Unknown element types and extra top-level fields are accepted.
func Decode(raw []byte) (model.Record, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return model.Record{}, false
	}

	var w wireRecord
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return model.Record{}, false
	}
	if w.Response == nil {
		return model.Record{}, false
	}

	rec := model.Record{
		Response:           *w.Response,
		FollowUpQuestions:  w.FollowUpQuestions,
		InteractiveElement: w.InteractiveElement,
	}
	if rec.FollowUpQuestions == nil {
		rec.FollowUpQuestions = []string{}
	}
	return rec, true
}

// Parse decodes rawText, falling back to FormatFallback with every contact
// channel when it is not a valid record. The boolean reports whether the text
// decoded.
func Parse(rawText string) (model.Record, bool) {
	return ParseWith(rawText, ChannelsAll)
}

// ParseWith is Parse with an explicit fallback contact set.
func ParseWith(rawText string, channels Channels) (model.Record, bool) {
	if rec, ok := Decode([]byte(rawText)); ok {
		return rec, true
	}
	return FormatFallback(rawText, channels), false
}
