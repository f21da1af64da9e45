package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseTranscription parses a model response. Models are asked for JSON but
// sometimes wrap it in markdown or answer with plain text; plain text is taken
// as the transcription itself.
func parseTranscription(text string) (*Transcription, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		return &Transcription{Text: text, Legible: true}, nil
	}

	var t Transcription
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &t); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" {
		t.Legible = false
	}
	return &t, nil
}
