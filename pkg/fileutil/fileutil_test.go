package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestFindFileCaseInsensitive(t *testing.T) {
	tmpDir := t.TempDir()

	testFiles := []string{
		"Pong.ch8",
		"BRIX.CH8",
		"tetris.c8",
		"Pong.txt",
	}
	for _, filename := range testFiles {
		path := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}

	tests := []struct {
		name          string
		searchName    string
		shouldFind    bool
		expectedMatch string
	}{
		{"完全一致", "Pong.ch8", true, "Pong.ch8"},
		{"小文字で混在ケースのファイルを探す", "pong.ch8", true, "Pong.ch8"},
		{"大小混在で大文字のファイルを探す", "Brix.ch8", true, "BRIX.CH8"},
		{"大文字で小文字のファイルを探す", "TETRIS.C8", true, "tetris.c8"},
		{"存在しない", "invaders.ch8", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := FindFileCaseInsensitive(tmpDir, tt.searchName)
			if !tt.shouldFind {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound, got path=%q err=%v", path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected to find file, got error: %v", err)
			}
			if filepath.Base(path) != tt.expectedMatch {
				t.Errorf("expected %s, got %s", tt.expectedMatch, filepath.Base(path))
			}
			if _, err := os.Stat(path); err != nil {
				t.Errorf("returned path does not exist: %s", path)
			}
		})
	}
}

func TestRealFS_ReadFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "MAZE.CH8"), []byte{0xA2, 0x1E}, 0644); err != nil {
		t.Fatal(err)
	}

	fsys := NewRealFS(tmpDir)
	data, err := fsys.ReadFile("maze.ch8")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(data) != 2 || data[0] != 0xA2 {
		t.Errorf("unexpected data: % X", data)
	}
	if fsys.IsEmbedded() || fsys.BasePath() != tmpDir {
		t.Error("unexpected RealFS properties")
	}

	// basePathなしでは絶対パスをそのまま使う
	data, err = NewRealFS("").ReadFile(filepath.Join(tmpDir, "Maze.ch8"))
	if err != nil || len(data) != 2 {
		t.Errorf("absolute path read failed: %v", err)
	}
}

func TestEmbedFS(t *testing.T) {
	mapFS := fstest.MapFS{
		"roms/Demo.ch8":      {Data: []byte{0x00, 0xE0}},
		"roms/demo.txt":      {Data: []byte("Demo\n")},
		"roms/soundfont.sf2": {Data: []byte("RIFF")},
	}
	fsys := NewEmbedFS(mapFS, "roms")

	if !fsys.IsEmbedded() {
		t.Error("EmbedFS should report embedded")
	}

	t.Run("大文字小文字を無視して読む", func(t *testing.T) {
		data, err := fsys.ReadFile("DEMO.CH8")
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if len(data) != 2 {
			t.Errorf("len = %d", len(data))
		}
	})

	t.Run("ベースパス付きの名前も受け付ける", func(t *testing.T) {
		if _, err := fsys.ReadFile("roms/demo.txt"); err != nil {
			t.Errorf("ReadFile failed: %v", err)
		}
	})

	t.Run("FindFile", func(t *testing.T) {
		p, err := fsys.FindFile(".", "SOUNDFONT.SF2")
		if err != nil {
			t.Fatalf("FindFile failed: %v", err)
		}
		if p != "roms/soundfont.sf2" {
			t.Errorf("path = %q", p)
		}
	})

	t.Run("Open", func(t *testing.T) {
		f, err := fsys.Open("demo.ch8")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		f.Close()
	})
}

func TestListFiles(t *testing.T) {
	mapFS := fstest.MapFS{
		"roms/zeta.ch8":  {Data: []byte{}},
		"roms/Alpha.CH8": {Data: []byte{}},
		"roms/beta.rom":  {Data: []byte{}},
		"roms/beta.txt":  {Data: []byte{}},
		"roms/sub/x.ch8": {Data: []byte{}},
	}
	names, err := ListFiles(NewEmbedFS(mapFS, "roms"), ".", ".ch8", ".rom")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	want := []string{"Alpha.CH8", "beta.rom", "zeta.ch8"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestHasExtAndReplaceExt(t *testing.T) {
	if !HasExt("PONG.CH8", ".ch8", ".c8") {
		t.Error("HasExt should ignore case")
	}
	if HasExt("pong.txt", ".ch8") {
		t.Error("HasExt matched a wrong extension")
	}
	if got := ReplaceExt("roms/pong.ch8", ".json"); got != "roms/pong.json" {
		t.Errorf("ReplaceExt = %q", got)
	}
	if got := ReplaceExt("noext", ".txt"); got != "noext.txt" {
		t.Errorf("ReplaceExt = %q", got)
	}
}
