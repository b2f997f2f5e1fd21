// Package main implements the genconfig tool that writes config.default.toml
// from config.DefaultConfig(), annotated with config.ConfigDocs.
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/codecord/internal/config"
)

// outPath is relative to internal/config/, where go generate runs. The repo
// root embeds the file via configdata.go.
const outPath = "../../config.default.toml"

func main() {
	result, err := render(config.DefaultConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Println("wrote config.default.toml")
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// docWriter accumulates the annotated output while walking encoder lines.
type docWriter struct {
	docs    map[string]config.FieldDoc
	out     []string
	section []string
	emitted map[string]bool
}

// render encodes cfg as TOML and interleaves the comments and alternatives
// from docs. Keys documented in docs but dropped by the encoder (omitempty
// zero values) are written as commented-out alternatives.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	w := &docWriter{docs: docs, emitted: map[string]bool{}}
	w.out = append(w.out,
		"# ///////////////////////////////////////////////",
		"# Codecord Configuration",
		"# ///////////////////////////////////////////////",
		"",
	)
	for _, line := range strings.Split(raw.String(), "\n") {
		w.line(strings.TrimSpace(line))
	}
	w.injectOmitted()

	return strings.TrimRight(strings.Join(w.out, "\n"), "\n") + "\n", nil
}

// line handles one trimmed encoder line.
func (w *docWriter) line(trimmed string) {
	switch {
	case trimmed == "":
		// Spacing is managed here, not by the encoder.
	case strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[["):
		w.injectOmitted()
		name := strings.Trim(trimmed, "[] ")
		w.section = parseSectionPath(name)
		w.out = append(w.out, "", fmt.Sprintf("# ///// %s /////", sectionName(name)), "")
		w.comment(w.docs[name].Comment)
		w.out = append(w.out, trimmed)
	case strings.HasPrefix(trimmed, "#") || !strings.Contains(trimmed, "="):
		w.out = append(w.out, trimmed)
	default:
		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		path := w.path(key)
		w.emitted[path] = true
		doc := w.docs[path]
		w.comment(doc.Comment)
		w.out = append(w.out, trimmed)
		w.comment(strings.Join(doc.Alternatives, "\n"))
	}
}

// path returns the dotted path of key within the current section.
func (w *docWriter) path(key string) string {
	if len(w.section) == 0 {
		return key
	}
	return strings.Join(w.section, ".") + "." + key
}

// comment appends text as "# " lines. Empty text is skipped.
func (w *docWriter) comment(text string) {
	if text == "" {
		return
	}
	for _, l := range strings.Split(text, "\n") {
		w.out = append(w.out, strings.TrimRight("# "+l, " "))
	}
}

// injectOmitted writes documented keys of the current section that the
// encoder did not emit, sorted for deterministic output.
func (w *docWriter) injectOmitted() {
	if len(w.section) == 0 {
		return
	}
	prefix := strings.Join(w.section, ".") + "."

	var omitted []string
	for path := range w.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || w.emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := w.docs[path]
		w.out = append(w.out, "")
		w.comment(doc.Comment)
		w.comment(strings.Join(doc.Alternatives, "\n"))
		w.emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header (e.g. "display.assets")
// into its segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the last dotted segment of section with its first
// letter capitalized. For example, "display.assets" yields "Assets".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
