package rom

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/zurustar/chip-et/pkg/vm"
	"golang.org/x/text/encoding/japanese"
)

func testEmbedFS() fstest.MapFS {
	return fstest.MapFS{
		"roms/demo.ch8":  {Data: []byte{0x00, 0xE0, 0x12, 0x02}},
		"roms/demo.txt":  {Data: []byte("Font Demo\nDraws the hex font.\n\n")},
		"roms/maze.CH8":  {Data: []byte{0xA2, 0x1E}},
		"roms/maze.json": {Data: []byte(`{"cyclesPerSecond": 700, "title": "Maze"}`)},
		"roms/readme.md": {Data: []byte("not a rom")},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("埋め込みROMを列挙する", func(t *testing.T) {
		r := NewRegistry(testEmbedFS())
		roms := r.Available()
		if len(roms) != 2 {
			t.Fatalf("expected 2 ROMs, got %d", len(roms))
		}
		if roms[0].Name != "demo" || roms[1].Name != "maze" {
			t.Errorf("unexpected names: %q, %q", roms[0].Name, roms[1].Name)
		}
		if !roms[0].IsEmbedded {
			t.Error("embedded ROM should be marked as embedded")
		}
	})

	t.Run("サイドカーを読む", func(t *testing.T) {
		roms := NewRegistry(testEmbedFS()).Available()
		demo, maze := roms[0], roms[1]
		if demo.DisplayName() != "Font Demo" {
			t.Errorf("demo DisplayName = %q", demo.DisplayName())
		}
		if len(demo.Info.Description) != 1 || demo.Info.Description[0] != "Draws the hex font." {
			t.Errorf("demo description = %q", demo.Info.Description)
		}
		if maze.DisplayName() != "Maze" || maze.CyclesPerSecond() != 700 {
			t.Errorf("maze config not applied: %q %d", maze.DisplayName(), maze.CyclesPerSecond())
		}
		if demo.CyclesPerSecond() != 0 {
			t.Error("demo has no json sidecar")
		}
	})

	t.Run("nilのfsでは空", func(t *testing.T) {
		if len(NewRegistry(nil).Available()) != 0 {
			t.Error("expected no ROMs")
		}
	})
}

func TestSelect(t *testing.T) {
	t.Run("ROMなし", func(t *testing.T) {
		_, _, err := NewRegistry(nil).Select()
		if !errors.Is(err, ErrNoROMs) {
			t.Errorf("expected ErrNoROMs, got %v", err)
		}
	})

	t.Run("複数ROMは選択画面が必要", func(t *testing.T) {
		rom, needs, err := NewRegistry(testEmbedFS()).Select()
		if err != nil || !needs || rom != nil {
			t.Errorf("Select() = %v, %v, %v", rom, needs, err)
		}
	})

	t.Run("単一ROMは自動選択", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "pong.bin")
		if err := os.WriteFile(path, []byte{0x12, 0x00}, 0644); err != nil {
			t.Fatal(err)
		}
		r := NewRegistry(testEmbedFS())
		if err := r.LoadExternal(path); err != nil {
			t.Fatalf("LoadExternal failed: %v", err)
		}
		rom, needs, err := r.Select()
		if err != nil || needs {
			t.Fatalf("Select() = %v, %v", needs, err)
		}
		if rom.Name != "pong" || rom.IsEmbedded {
			t.Errorf("unexpected ROM: %+v", rom)
		}
		data, err := rom.Load()
		if err != nil || len(data) != 2 {
			t.Errorf("Load() = % X, %v", data, err)
		}
	})
}

func TestLoadExternal(t *testing.T) {
	t.Run("ディレクトリ", func(t *testing.T) {
		tmpDir := t.TempDir()
		for _, name := range []string{"B.ch8", "a.c8", "notes.txt"} {
			if err := os.WriteFile(filepath.Join(tmpDir, name), []byte{0}, 0644); err != nil {
				t.Fatal(err)
			}
		}
		r := NewRegistry(nil)
		if err := r.LoadExternal(tmpDir); err != nil {
			t.Fatalf("LoadExternal failed: %v", err)
		}
		roms := r.Available()
		if len(roms) != 2 || roms[0].Name != "a" || roms[1].Name != "B" {
			t.Errorf("unexpected ROMs: %+v", roms)
		}
	})

	t.Run("ROMのないディレクトリ", func(t *testing.T) {
		err := NewRegistry(nil).LoadExternal(t.TempDir())
		if !errors.Is(err, ErrNoROMs) {
			t.Errorf("expected ErrNoROMs, got %v", err)
		}
	})

	t.Run("存在しないパス", func(t *testing.T) {
		err := NewRegistry(nil).LoadExternal("/nonexistent/pong.ch8")
		if !errors.Is(err, ErrROMNotFound) {
			t.Errorf("expected ErrROMNotFound, got %v", err)
		}
	})
}

func TestLoad_TooLarge(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "huge.ch8")
	if err := os.WriteFile(path, make([]byte, vm.MaxROMSize+1), 0644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(nil)
	if err := r.LoadExternal(path); err != nil {
		t.Fatal(err)
	}
	rom, _, _ := r.Select()
	if _, err := rom.Load(); !errors.Is(err, vm.ErrROMTooLarge) {
		t.Errorf("expected ErrROMTooLarge, got %v", err)
	}
}

func TestParseInfo(t *testing.T) {
	t.Run("先頭の空行を飛ばす", func(t *testing.T) {
		info := ParseInfo([]byte("\r\n\r\nPong\r\nby Paul Vervalin\r\n"))
		if info.Title != "Pong" {
			t.Errorf("Title = %q", info.Title)
		}
		if len(info.Description) != 1 || info.Description[0] != "by Paul Vervalin" {
			t.Errorf("Description = %q", info.Description)
		}
	})

	t.Run("Shift-JISをデコードする", func(t *testing.T) {
		sjis, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("迷路\n説明"))
		if err != nil {
			t.Fatal(err)
		}
		info := ParseInfo(sjis)
		if info.Title != "迷路" {
			t.Errorf("Title = %q", info.Title)
		}
		if len(info.Description) != 1 || info.Description[0] != "説明" {
			t.Errorf("Description = %q", info.Description)
		}
	})

	t.Run("BOM付きUTF-8", func(t *testing.T) {
		info := ParseInfo([]byte("\xEF\xBB\xBFテトリス"))
		if info.Title != "テトリス" {
			t.Errorf("Title = %q", info.Title)
		}
	})
}
