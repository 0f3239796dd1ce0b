package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystem_CreateThenOpen(t *testing.T) {
	m := NewMemoryFileSystem()

	w, err := m.Create("out/eye.svg")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := io.WriteString(w, "<svg/>"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if Exists(m, "out/eye.svg") {
		t.Error("file visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := m.Open("./out/eye.svg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "<svg/>" {
		t.Errorf("contents = %q, want %q", got, "<svg/>")
	}

	info, err := m.Stat("out/eye.svg")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 6 || info.IsDir() {
		t.Errorf("Stat = size %d dir %v", info.Size(), info.IsDir())
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.Open("nope.csv"); !os.IsNotExist(err) {
		t.Errorf("Open missing: got %v, want not-exist", err)
	}
	if _, err := m.ReadFile("nope.csv"); !os.IsNotExist(err) {
		t.Errorf("ReadFile missing: got %v, want not-exist", err)
	}
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.MkdirAll("plots/link-a/20260107", 0o755); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{"plots", "plots/link-a", "plots/link-a/20260107"} {
		info, err := m.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("Stat(%q) = %v, %v; want directory", dir, info, err)
		}
	}
}

func TestMemoryFileSystem_Isolation(t *testing.T) {
	m := NewMemoryFileSystem()
	data := []byte("1\n2\n")
	m.AddFile("sig.txt", data)
	data[0] = '9'

	got, err := m.ReadFile("sig.txt")
	if err != nil {
		t.Fatal(err)
	}
	got[1] = 'x'
	again, _ := m.ReadFile("sig.txt")
	if string(again) != "1\n2\n" {
		t.Errorf("stored data mutated: %q", again)
	}
}

func TestOSFileSystem(t *testing.T) {
	var osfs OSFileSystem
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := osfs.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "x.txt")
	w, err := osfs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "0.5\n")
	w.Close()

	if !Exists(osfs, path) {
		t.Fatal("expected file to exist")
	}
	data, err := osfs.ReadFile(path)
	if err != nil || string(data) != "0.5\n" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}
}
