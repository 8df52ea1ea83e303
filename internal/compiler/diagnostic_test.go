package compiler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTrimDiagnostic(t *testing.T) {
	raw := append([]byte("Syntax error at line 3\r\n"), make([]byte, 20)...)
	if got := string(trimDiagnostic(raw)); got != "Syntax error at line 3" {
		t.Errorf("trimDiagnostic = %q", got)
	}
	if got := trimDiagnostic(make([]byte, DefaultDiagnosticSize)); len(got) != 0 {
		t.Errorf("all-NUL segment = %q, want empty", got)
	}
}

func TestFileChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag")
	ch := NewFileChannel(path, 8)

	// A missing file reads as empty.
	if got := readDiagnostic(ch, nil); got != "" {
		t.Errorf("missing file = %q", got)
	}

	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	raw, err := ch.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(raw) != "01234567" {
		t.Errorf("Read = %q, want size-capped contents", raw)
	}
}

func TestReadDiagnosticDecodesToolchainEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag")
	// "Ungültiger Befehl" in windows-1252, NUL padded.
	raw := append([]byte("Ung\xfcltiger Befehl\r\n"), make([]byte, 8)...)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	codec, err := NewCodec("windows-1252")
	if err != nil {
		t.Fatal(err)
	}

	if got := readDiagnostic(NewFileChannel(path, DefaultDiagnosticSize), codec); got != "Ungültiger Befehl" {
		t.Errorf("readDiagnostic = %q", got)
	}
	if got := readDiagnostic(NewFileChannel(path, DefaultDiagnosticSize), nil); got != "Ung\uFFFDltiger Befehl" {
		t.Errorf("readDiagnostic without codec = %q", got)
	}
}

func TestNewDiagnosticChannel(t *testing.T) {
	if _, err := NewDiagnosticChannel("pipe", "/x", 256); err == nil {
		t.Error("expected error for unknown kind")
	}
	ch, err := NewDiagnosticChannel("file", "/x", 256)
	if err != nil {
		t.Fatalf("NewDiagnosticChannel: %v", err)
	}
	if _, ok := ch.(*FileChannel); !ok {
		t.Errorf("got %T, want *FileChannel", ch)
	}
}
