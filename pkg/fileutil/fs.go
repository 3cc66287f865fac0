// Package fileutil provides unified file system access for both real and embedded file systems.
package fileutil

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystem は実ファイルシステムと埋め込みファイルシステムを統一的に扱うインターフェース
type FileSystem interface {
	// Open はファイルを開く（大文字小文字を無視）
	Open(name string) (fs.File, error)
	// ReadFile はファイルの内容を読み込む（大文字小文字を無視）
	ReadFile(name string) ([]byte, error)
	// ReadDir はディレクトリの内容を読み込む
	ReadDir(name string) ([]fs.DirEntry, error)
	// FindFile は大文字小文字を無視してファイルを検索し、実際のパスを返す
	FindFile(dir, filename string) (string, error)
	// BasePath はベースパスを返す
	BasePath() string
	// IsEmbedded は埋め込みファイルシステムかどうかを返す
	IsEmbedded() bool
}

// RealFS は実ファイルシステムへのアクセスを提供する
type RealFS struct {
	basePath string
}

// NewRealFS は実ファイルシステム用のFileSystemを作成する
// basePathが空の場合、名前はそのまま（カレントディレクトリ基準または絶対パス）で解決される
func NewRealFS(basePath string) *RealFS {
	return &RealFS{basePath: basePath}
}

func (r *RealFS) Open(name string) (fs.File, error) {
	actual, err := r.locate(name)
	if err != nil {
		return nil, err
	}
	return os.Open(actual)
}

func (r *RealFS) ReadFile(name string) ([]byte, error) {
	actual, err := r.locate(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(actual)
}

func (r *RealFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(r.resolve(name))
}

func (r *RealFS) FindFile(dir, filename string) (string, error) {
	return FindFileCaseInsensitive(r.resolve(dir), filename)
}

func (r *RealFS) BasePath() string {
	return r.basePath
}

func (r *RealFS) IsEmbedded() bool {
	return false
}

func (r *RealFS) resolve(name string) string {
	if filepath.IsAbs(name) || r.basePath == "" {
		if name == "" {
			return "."
		}
		return name
	}
	return filepath.Join(r.basePath, strings.TrimLeft(name, `/\`))
}

// locate は完全一致を優先し、見つからなければ同じディレクトリを大文字小文字を無視して探す
func (r *RealFS) locate(name string) (string, error) {
	p := r.resolve(name)
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return FindFileCaseInsensitive(filepath.Dir(p), filepath.Base(p))
}

// EmbedFS は埋め込みファイルシステムへのアクセスを提供する
// パスの区切りは常に "/"
type EmbedFS struct {
	fsys     fs.FS
	basePath string
}

// NewEmbedFS は埋め込みファイルシステム用のFileSystemを作成する
func NewEmbedFS(fsys fs.FS, basePath string) *EmbedFS {
	return &EmbedFS{fsys: fsys, basePath: basePath}
}

func (e *EmbedFS) Open(name string) (fs.File, error) {
	actual, err := e.locate(name)
	if err != nil {
		return nil, err
	}
	return e.fsys.Open(actual)
}

func (e *EmbedFS) ReadFile(name string) ([]byte, error) {
	actual, err := e.locate(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(e.fsys, actual)
}

func (e *EmbedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(e.fsys, e.resolve(name))
}

func (e *EmbedFS) FindFile(dir, filename string) (string, error) {
	return FindFileCaseInsensitiveFS(e.fsys, e.resolve(dir), filename)
}

func (e *EmbedFS) BasePath() string {
	return e.basePath
}

func (e *EmbedFS) IsEmbedded() bool {
	return true
}

func (e *EmbedFS) resolve(name string) string {
	clean := strings.TrimLeft(strings.ReplaceAll(name, `\`, "/"), "/")
	if clean == "" || clean == "." {
		if e.basePath != "" {
			return e.basePath
		}
		return "."
	}
	if e.basePath != "" && !strings.HasPrefix(clean, e.basePath+"/") {
		return path.Join(e.basePath, clean)
	}
	return path.Clean(clean)
}

func (e *EmbedFS) locate(name string) (string, error) {
	p := e.resolve(name)
	if f, err := e.fsys.Open(p); err == nil {
		f.Close()
		return p, nil
	}
	return FindFileCaseInsensitiveFS(e.fsys, path.Dir(p), path.Base(p))
}
