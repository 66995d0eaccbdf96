package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestData(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"agency.db":          "sqlite bytes",
		"nats/jetstream.idx": "stream index",
		"nodes/n1/work.log":  "node output",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTestData(t, src)

	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	if err := runBackup([]string{"-f", archive, "-data", src}); err != nil {
		t.Fatalf("backup: %v", err)
	}

	dst := t.TempDir()
	if err := runRestore([]string{"-f", archive, "-data", dst}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	for _, name := range []string{"agency.db", "nats/jetstream.idx", "nodes/n1/work.log"} {
		want, err := os.ReadFile(filepath.Join(src, filepath.FromSlash(name)))
		if err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("restored file %s: %v", name, err)
		}
		if string(got) != string(want) {
			t.Errorf("file %s: got %q, want %q", name, got, want)
		}
	}
}

func TestRestoreRefusesNonEmptyTarget(t *testing.T) {
	src := t.TempDir()
	writeTestData(t, src)

	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	if err := runBackup([]string{"-f", archive, "-data", src}); err != nil {
		t.Fatalf("backup: %v", err)
	}

	dst := t.TempDir()
	if err := os.WriteFile(filepath.Join(dst, "existing.db"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runRestore([]string{"-f", archive, "-data", dst})
	if err == nil {
		t.Fatal("expected error for non-empty target")
	}
	if !strings.Contains(err.Error(), "not empty") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := runRestore([]string{"-f", archive, "-data", dst, "-overwrite"}); err != nil {
		t.Fatalf("restore with -overwrite: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "agency.db")); err != nil {
		t.Errorf("restored file missing after overwrite: %v", err)
	}
}

func TestRestoreRejectsInvalidArchive(t *testing.T) {
	bogus := filepath.Join(t.TempDir(), "bogus.tar.zst")
	if err := os.WriteFile(bogus, []byte("this is not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runRestore([]string{"-f", bogus, "-data", t.TempDir()}); err == nil {
		t.Fatal("expected error for invalid archive")
	}
}

func TestBackupRequiresOutputFlag(t *testing.T) {
	if err := runBackup(nil); err == nil {
		t.Fatal("expected error without -f")
	}
}

func TestSanitizeEntryName(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"agency.db", "agency.db", true},
		{"./nats/stream.idx", "nats/stream.idx", true},
		{"nodes/n1/../n2/log", "nodes/n2/log", true},
		{"/etc/passwd", "", false},
		{"../outside", "", false},
		{"nodes/../../outside", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := sanitizeEntryName(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("sanitizeEntryName(%q) = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 bytes"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
