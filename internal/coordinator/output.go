package coordinator

import (
	"encoding/json"
	"os"
	"strings"
	"unicode/utf8"
)

// previewLimit bounds the transcript preview kept on the job record.
const previewLimit = 500

// transcriptDoc is the JSON output document written by the worker.
type transcriptDoc struct {
	Text     string `json:"text"`
	Speakers int    `json:"speakers"`
}

// readResult loads the finished transcript and returns a bounded text
// preview plus the detected speaker count when available. Readback is
// best effort; a missing or unreadable file returns empty values.
func readResult(outputPath string) (preview string, speakers int) {
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return "", 0
	}

	if strings.HasSuffix(strings.ToLower(outputPath), ".json") {
		var doc transcriptDoc
		if jsonErr := json.Unmarshal(data, &doc); jsonErr == nil {
			return truncatePreview(doc.Text), doc.Speakers
		}
	}
	return truncatePreview(string(data)), 0
}

// truncatePreview caps a string at previewLimit runes without
// splitting a multi-byte character.
func truncatePreview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= previewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewLimit]) + "..."
}
