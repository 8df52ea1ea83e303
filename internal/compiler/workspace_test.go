package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspaceLifecycle(t *testing.T) {
	root := t.TempDir()
	codec, _ := NewCodec("utf-8")

	ws, err := OpenWorkspace(root, "print 1\nwait key\n", codec, quietLogger())
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}

	if filepath.Dir(ws.Dir) != root {
		t.Errorf("workspace %s not under %s", ws.Dir, root)
	}
	src, err := os.ReadFile(ws.SourcePath())
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(src) != "print 1\r\nwait key\r\n" {
		t.Errorf("source = %q", src)
	}
	if ws.HasBinary() {
		t.Error("fresh workspace should have no binary")
	}

	if err := os.WriteFile(ws.BinaryPath(), []byte("MZ"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !ws.HasBinary() {
		t.Error("HasBinary = false after writing binary")
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Errorf("workspace still exists: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWorkspaceUniqueDirs(t *testing.T) {
	root := t.TempDir()
	codec, _ := NewCodec("utf-8")

	a, err := OpenWorkspace(root, "", codec, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := OpenWorkspace(root, "", codec, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.Dir == b.Dir {
		t.Errorf("workspaces share %s", a.Dir)
	}
}

func TestWorkspaceBadRoot(t *testing.T) {
	codec, _ := NewCodec("utf-8")
	_, err := OpenWorkspace(filepath.Join(t.TempDir(), "missing"), "x", codec, nil)
	if !errors.Is(err, ErrWorkspace) {
		t.Errorf("error = %v, want ErrWorkspace", err)
	}
}
