package selector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func basenames(t *testing.T, dir, pattern string) []string {
	t.Helper()
	files, err := Select(dir, pattern)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Basename())
	}
	return out
}

func TestSelectFirstSessionScenario(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "001_1_1.jpg", "001_1_2.jpg", "001_2_1.jpg")

	got := basenames(t, dir, DefaultPattern)
	want := []string{"001_1_1.jpg", "001_1_2.jpg"}
	if len(got) != len(want) {
		t.Fatalf("Select() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Select()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSelectPatternBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		match bool
	}{
		{"first session", "001_1_3.jpg", true},
		{"second session", "001_2_3.jpg", false},
		{"double digit session", "001_11_3.jpg", false},
		{"session suffix", "001_21_3.jpg", false},
		{"no infix", "0011.jpg", false},
		{"wrong extension", "001_1_3.png", false},
		{"infix in subject", "a_1_b_2_3.jpg", true},
		{"leading infix", "_1_.jpg", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, tt.file)
			got := basenames(t, dir, DefaultPattern)
			if (len(got) == 1) != tt.match {
				t.Errorf("Select() on %q = %v, want match=%v", tt.file, got, tt.match)
			}
		})
	}
}

func TestSelectSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "002_1_1.jpg")
	if err := os.Mkdir(filepath.Join(dir, "003_1_1.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, sub, "004_1_1.jpg")

	got := basenames(t, dir, DefaultPattern)
	if len(got) != 1 || got[0] != "002_1_1.jpg" {
		t.Errorf("Select() = %v, want [002_1_1.jpg]", got)
	}
}

func TestSelectEmptyDirectory(t *testing.T) {
	files, err := Select(t.TempDir(), DefaultPattern)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Select() = %v, want empty", files)
	}
}

func TestSelectMissingDirectory(t *testing.T) {
	_, err := Select(filepath.Join(t.TempDir(), "missing"), DefaultPattern)
	if !errors.Is(err, ErrSourceDirMissing) {
		t.Fatalf("Select() error = %v, want ErrSourceDirMissing", err)
	}
}

func TestSelectFileInsteadOfDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "plain.txt")
	_, err := Select(filepath.Join(dir, "plain.txt"), DefaultPattern)
	if !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("Select() error = %v, want ErrNotDirectory", err)
	}
}

func TestSelectBadPattern(t *testing.T) {
	_, err := Select(t.TempDir(), "[")
	if !errors.Is(err, filepath.ErrBadPattern) {
		t.Fatalf("Select() error = %v, want ErrBadPattern", err)
	}
}

func TestSelectEmptyPatternUsesDefault(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "005_1_1.jpg", "005_2_1.jpg")
	got := basenames(t, dir, "")
	if len(got) != 1 || got[0] != "005_1_1.jpg" {
		t.Errorf("Select() = %v, want [005_1_1.jpg]", got)
	}
}
