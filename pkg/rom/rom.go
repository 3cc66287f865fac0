// Package rom は CHIP-8 ROM の一覧と読み込みを扱う
package rom

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/zurustar/chip-et/pkg/fileutil"
	"github.com/zurustar/chip-et/pkg/vm"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// EmbeddedDir は埋め込みROMを置くディレクトリ名
const EmbeddedDir = "roms"

// Extensions はROMとして扱う拡張子
var Extensions = []string{".ch8", ".c8", ".rom"}

var (
	// ErrNoROMs は選択可能なROMが一つもないことを示す
	ErrNoROMs = errors.New("no ROMs available")
	// ErrROMNotFound は指定されたROMのパスが存在しないことを示す
	ErrROMNotFound = errors.New("ROM not found")
)

// Config は <name>.json サイドカーの構造
type Config struct {
	CyclesPerSecond int    `json:"cyclesPerSecond"`
	Title           string `json:"title"`
}

// Info は <name>.txt サイドカーから読んだ説明
// 最初の空でない行がタイトル、残りが説明文
type Info struct {
	Title       string
	Description []string
}

// Rom は一つのROMファイルを表す
type Rom struct {
	Name       string  // 拡張子を除いたファイル名
	Path       string  // fsys内のパス
	IsEmbedded bool    // embedされたROMかどうか
	Info       *Info   // .txtサイドカー（なければnil）
	Config     *Config // .jsonサイドカー（なければnil）

	fsys fileutil.FileSystem
}

// DisplayName はROMの表示名を返す
// .jsonのtitle、.txtの1行目、ファイル名の順に優先する
func (r *Rom) DisplayName() string {
	if r.Config != nil && r.Config.Title != "" {
		return r.Config.Title
	}
	if r.Info != nil && r.Info.Title != "" {
		return r.Info.Title
	}
	return r.Name
}

// FileSystem はROMを読み込むファイルシステムを返す
func (r *Rom) FileSystem() fileutil.FileSystem {
	return r.fsys
}

// CyclesPerSecond はサイドカーで指定された実行速度を返す（指定なしは0）
func (r *Rom) CyclesPerSecond() int {
	if r.Config == nil {
		return 0
	}
	return r.Config.CyclesPerSecond
}

// Load はROMの内容を読み込む
// vm.MaxROMSize を超える場合は vm.ErrROMTooLarge を返す
func (r *Rom) Load() ([]byte, error) {
	data, err := r.fsys.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ROM %s: %w", r.Path, err)
	}
	if len(data) > vm.MaxROMSize {
		return nil, fmt.Errorf("%s: %w: %d bytes (max %d)", r.Path, vm.ErrROMTooLarge, len(data), vm.MaxROMSize)
	}
	return data, nil
}

// Registry はROMの管理を行う
type Registry struct {
	embedded []Rom // embedされたROM一覧
	external []Rom // 外部から指定されたROM
}

// NewRegistry はRegistryを作成する
// embedFSがnilの場合、埋め込みROMは無い
func NewRegistry(embedFS fs.FS) *Registry {
	r := &Registry{}
	if embedFS != nil {
		r.embedded = scanDir(fileutil.NewEmbedFS(embedFS, EmbeddedDir), ".")
	}
	return r
}

// LoadExternal は外部のROMファイルまたはROMを含むディレクトリを読み込む
func (r *Registry) LoadExternal(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrROMNotFound, path)
		}
		return fmt.Errorf("failed to access ROM path: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	if info.IsDir() {
		roms := scanDir(fileutil.NewRealFS(absPath), ".")
		if len(roms) == 0 {
			return fmt.Errorf("%w: no %s files in %s", ErrNoROMs, strings.Join(Extensions, "/"), path)
		}
		r.external = roms
		return nil
	}

	// ファイルが直接指定された場合は拡張子を問わない
	fsys := fileutil.NewRealFS(filepath.Dir(absPath))
	r.external = []Rom{newRom(fsys, filepath.Base(absPath))}
	return nil
}

// Available は利用可能なROM一覧を返す
// 外部ROMが指定されている場合はそれのみを返す
func (r *Registry) Available() []Rom {
	if len(r.external) > 0 {
		return append([]Rom(nil), r.external...)
	}
	return append([]Rom(nil), r.embedded...)
}

// Select はROMを選択する（単一の場合は自動選択）
// 戻り値: (選択されたROM, 選択画面が必要か, エラー)
func (r *Registry) Select() (*Rom, bool, error) {
	roms := r.Available()
	switch len(roms) {
	case 0:
		return nil, false, ErrNoROMs
	case 1:
		return &roms[0], false, nil
	default:
		return nil, true, nil
	}
}

// scanDir はdir内のROMファイルを列挙する
func scanDir(fsys fileutil.FileSystem, dir string) []Rom {
	names, err := fileutil.ListFiles(fsys, dir, Extensions...)
	if err != nil {
		return nil
	}
	roms := make([]Rom, 0, len(names))
	for _, name := range names {
		roms = append(roms, newRom(fsys, name))
	}
	return roms
}

func newRom(fsys fileutil.FileSystem, name string) Rom {
	rom := Rom{
		Name:       strings.TrimSuffix(name, filepath.Ext(name)),
		Path:       name,
		IsEmbedded: fsys.IsEmbedded(),
		fsys:       fsys,
	}
	if data, err := fsys.ReadFile(fileutil.ReplaceExt(name, ".txt")); err == nil {
		rom.Info = ParseInfo(data)
	}
	if data, err := fsys.ReadFile(fileutil.ReplaceExt(name, ".json")); err == nil {
		var cfg Config
		// パースエラーの場合はサイドカーなしとして扱う
		if json.Unmarshal(data, &cfg) == nil {
			rom.Config = &cfg
		}
	}
	return rom
}

// ParseInfo は.txtサイドカーを解析する
// UTF-8として不正な場合はShift-JISとしてデコードする
func ParseInfo(data []byte) *Info {
	text := decodeText(data)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	info := &Info{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if info.Title == "" {
			info.Title = strings.TrimSpace(line)
			continue
		}
		info.Description = append(info.Description, line)
	}

	// 末尾の空行を除く
	for len(info.Description) > 0 && info.Description[len(info.Description)-1] == "" {
		info.Description = info.Description[:len(info.Description)-1]
	}
	return info
}

// decodeText はUTF-8ならそのまま、そうでなければShift-JISからUTF-8に変換する
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return string(data)
	}
	reader := transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		// 変換に失敗した場合はそのまま返す
		return string(data)
	}
	return string(decoded)
}
