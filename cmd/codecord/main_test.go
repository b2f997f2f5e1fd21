package main

import (
	"bytes"
	"strings"
	"testing"
)

// execute runs the command tree with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ///////////////////////////////////////////////
// resolveVersion Tests
// ///////////////////////////////////////////////

func TestResolveVersionWithLdflags(t *testing.T) {
	original := version
	defer func() { version = original }()

	version = "1.2.3"
	if got := resolveVersion(); got != "1.2.3" {
		t.Errorf("resolveVersion() = %q, want %q", got, "1.2.3")
	}
}

func TestResolveVersionDev(t *testing.T) {
	// Test binaries may or may not carry VCS info.
	original := version
	defer func() { version = original }()

	version = "dev"
	got := resolveVersion()
	if !strings.HasPrefix(got, "dev") {
		t.Errorf("resolveVersion() = %q, expected to start with 'dev'", got)
	}
}

// ///////////////////////////////////////////////
// defaultDataDir Tests
// ///////////////////////////////////////////////

func TestDefaultDataDir(t *testing.T) {
	dir := defaultDataDir()
	if !strings.HasSuffix(dir, ".codecord") {
		t.Errorf("defaultDataDir() = %q, want path ending in .codecord", dir)
	}
}

// ///////////////////////////////////////////////
// Command Tree Tests
// ///////////////////////////////////////////////

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"focus", "run", "status", "toggle", "version"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not found (err %v)", name, err)
		}
	}
	if root.Flags().Lookup("foreground") == nil {
		t.Error("root command should accept --foreground like run")
	}
	if root.PersistentFlags().Lookup("data-dir") == nil {
		t.Error("--data-dir flag missing")
	}
}

func TestVersionCommand(t *testing.T) {
	original := version
	defer func() { version = original }()
	version = "1.2.3"

	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "codecord 1.2.3\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "OS/Arch:") {
		t.Errorf("output missing platform: %q", out)
	}
}
