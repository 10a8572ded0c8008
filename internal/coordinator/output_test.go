package coordinator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestReadResultJSON verifies text and speaker extraction from the
// JSON output document.
func TestReadResultJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	doc := `{"source": "a.wav", "duration": 9.1, "diarization": true, "speakers": 3, "text": "hello there", "segments": []}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	preview, speakers := readResult(path)
	if preview != "hello there" {
		t.Errorf("preview = %q", preview)
	}
	if speakers != 3 {
		t.Errorf("speakers = %d, want 3", speakers)
	}
}

// TestReadResultText verifies the bounded plain-text preview.
func TestReadResultText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	long := strings.Repeat("слово ", 200)
	if err := os.WriteFile(path, []byte(long), 0o644); err != nil {
		t.Fatal(err)
	}

	preview, speakers := readResult(path)
	if speakers != 0 {
		t.Errorf("speakers = %d for a text transcript, want 0", speakers)
	}
	if !strings.HasSuffix(preview, "...") {
		t.Error("long preview was not truncated")
	}
	if got := len([]rune(preview)); got > previewLimit+3 {
		t.Errorf("preview is %d runes, want at most %d", got, previewLimit+3)
	}
}

// TestReadResultMissingFile verifies best-effort readback.
func TestReadResultMissingFile(t *testing.T) {
	preview, speakers := readResult(filepath.Join(t.TempDir(), "absent.md"))
	if preview != "" || speakers != 0 {
		t.Errorf("readResult() = %q, %d for a missing file", preview, speakers)
	}
}
