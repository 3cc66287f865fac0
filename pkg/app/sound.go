package app

import (
	"io/fs"
	"path"

	"github.com/zurustar/chip-et/pkg/fileutil"
	"github.com/zurustar/chip-et/pkg/rom"
	"github.com/zurustar/chip-et/pkg/vm/audio"
)

// SoundLocation はブザー音の素材ファイルの場所
type SoundLocation struct {
	// Path は FileSystem 内のパス（FileSystem が nil なら OS のパス）
	Path string
	// FileSystem は読み込みに使う（外部ファイルは nil）
	FileSystem fileutil.FileSystem
	// IsEmbedded は埋め込みファイルかどうか
	IsEmbedded bool
}

// DefaultSoundFontName は探索する SoundFont のファイル名
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// SoundFontDir は埋め込み SoundFont を置くディレクトリ名
const SoundFontDir = "soundfonts"

// findSoundFont は SoundFont を次の順で探す
// 1. 明示指定（--soundfont、次に settings.json）
// 2. 埋め込みの soundfonts ディレクトリ
// 3. ROM と同じディレクトリ
//
// 明示指定は存在を確かめずにそのまま返す（読み込み時に ErrSoundFontNotFound になる）
func findSoundFont(embedFS fs.FS, explicit string, r *rom.Rom) *SoundLocation {
	// 1. 明示指定
	if explicit != "" {
		return &SoundLocation{Path: explicit}
	}

	// 2. 埋め込みの soundfonts ディレクトリ
	if embedFS != nil {
		sfPath := SoundFontDir + "/" + DefaultSoundFontName
		if data, err := fs.ReadFile(embedFS, sfPath); err == nil && len(data) > 0 {
			return &SoundLocation{
				Path:       DefaultSoundFontName, // FileSystem のベースパスが soundfonts なのでファイル名だけ
				FileSystem: fileutil.NewEmbedFS(embedFS, SoundFontDir),
				IsEmbedded: true,
			}
		}
	}

	// 3. ROM と同じディレクトリ
	return findBesideRom(r, DefaultSoundFontName)
}

// findSample は ROM と同じディレクトリにある <ROM名>.wav を探す
func findSample(r *rom.Rom) *SoundLocation {
	if r == nil {
		return nil
	}
	return findBesideRom(r, r.Name+".wav")
}

// findBesideRom は ROM と同じディレクトリから name を大文字小文字を無視して探す
func findBesideRom(r *rom.Rom, name string) *SoundLocation {
	if r == nil || r.FileSystem() == nil {
		return nil
	}
	fsys := r.FileSystem()
	p, err := fsys.FindFile(path.Dir(r.Path), name)
	if err != nil {
		return nil
	}
	return &SoundLocation{Path: p, FileSystem: fsys, IsEmbedded: fsys.IsEmbedded()}
}

// newStream はブザーの音源を用意する
// SoundFont、ROM 付属の WAV、矩形波の順に試し、読み込めないものは警告して次へ進む
func (app *Application) newStream(r *rom.Rom) audio.Stream {
	if loc := findSoundFont(app.embedFS, app.soundFontPath(), r); loc != nil {
		voice, err := loadVoice(loc)
		if err == nil {
			app.log.Info("Using SoundFont buzzer", "path", loc.Path, "embedded", loc.IsEmbedded)
			return voice
		}
		app.log.Warn("SoundFont unavailable, falling back", "path", loc.Path, "error", err)
	}

	if loc := findSample(r); loc != nil {
		sample, err := audio.LoadWAVFS(loc.FileSystem, loc.Path)
		if err == nil {
			app.log.Info("Using WAV buzzer", "path", loc.Path)
			return sample
		}
		app.log.Warn("WAV sample unavailable, falling back", "path", loc.Path, "error", err)
	}

	return audio.NewSquareWave(audio.DefaultToneFrequency, 0.5)
}

func loadVoice(loc *SoundLocation) (*audio.SoundFontVoice, error) {
	sf, err := audio.LoadSoundFontFS(loc.FileSystem, loc.Path)
	if err != nil {
		return nil, err
	}
	return audio.NewSoundFontVoice(sf, audio.DefaultProgram, audio.DefaultKey)
}

// soundFontPath はフラグ、ユーザー設定の順で SoundFont の指定を返す
func (app *Application) soundFontPath() string {
	if app.config.SoundFont != "" {
		return app.config.SoundFont
	}
	if app.settings != nil {
		return app.settings.SoundFont
	}
	return ""
}
