// write_test.go tests [Write] and [WriteJSON] for basic correctness,
// overwrite semantics, and cleanup of temp files on failure.

package atomicfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteBasic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := []byte("[presence]\nenabled = true\n")

	if err := Write(path, data, 0o644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestWriteOverwriteLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "editor.json")

	for _, content := range []string{"first", "second", "third"} {
		if err := Write(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Write(%q) failed: %v", content, err)
		}
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "third" {
		t.Errorf("content = %q, want %q", got, "third")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if matched, _ := filepath.Match("*.tmp.*", e.Name()); matched {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteCleanupOnFailure(t *testing.T) {
	badPath := filepath.Join(t.TempDir(), "no-such-dir", "file.txt")

	if err := Write(badPath, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error writing to non-existent directory")
	}

	parent := filepath.Dir(filepath.Dir(badPath))
	entries, _ := os.ReadDir(parent)
	for _, e := range entries {
		if matched, _ := filepath.Match("file.txt.tmp.*", e.Name()); matched {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

// ///////////////////////////////////////////////
// WriteJSON
// ///////////////////////////////////////////////

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	in := map[string]any{"file": "/src/main.go", "languageId": "go"}

	if err := WriteJSON(path, in, 0o644); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Error("expected trailing newline")
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["languageId"] != "go" {
		t.Errorf("languageId = %v, want go", out["languageId"])
	}
}

func TestWriteJSONUnmarshalable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := WriteJSON(path, map[string]any{"ch": make(chan int)}, 0o644); err == nil {
		t.Fatal("expected marshal error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected no file to be written, stat err = %v", err)
	}
}
