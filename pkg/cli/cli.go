package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zurustar/chip-et/pkg/engine"
	"github.com/zurustar/chip-et/pkg/logger"
)

// スケールの上限（64x32 を最大 2048x1024 まで拡大）
const MaxScale = 32

// Config はコマンドライン引数から解析された設定を保持する
// 数値項目の 0 と文字列項目の空文字は「未指定」を表し、ユーザー設定や既定値で補う
type Config struct {
	RomPath    string        // ROM ファイル、または ROM を含むディレクトリ
	Timeout    time.Duration // タイムアウト時間（0は無制限）
	LogLevel   string        // ログレベル（debug, info, warn, error）
	Headless   bool          // ヘッドレスモード
	TUI        bool          // ターミナルモニタで実行
	CPS        int           // 1秒あたりの命令実行数
	Scale      int           // ウィンドウ倍率
	SoundFont  string        // SoundFont (.sf2) のパス
	Mute       bool          // 音を出さない
	Trace      bool          // 命令ごとにデバッグログを出す
	ExitOnIdle bool          // 自己ジャンプで停止したら終了（ヘッドレス）
	DumpFrames bool          // 画面をテキストで標準出力に書く（ヘッドレス）
	ShowHelp   bool          // ヘルプ表示フラグ
}

// 値を取らないフラグ（reorderArgs が次の引数を値として取り込まないようにする）
var boolFlags = map[string]bool{
	"h": true, "help": true,
	"headless": true, "tui": true,
	"mute": true, "trace": true,
	"exit-on-idle": true, "dump-frames": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
// 優先順位はコマンドラインフラグ、環境変数の順
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("chip-et", flag.ContinueOnError)

	config := &Config{}

	var timeoutSec int
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.BoolVar(&config.TUI, "tui", false, "ターミナルモニタ")
	fs.IntVar(&config.CPS, "cps", 0, "1秒あたりの命令実行数")
	fs.IntVar(&config.CPS, "c", 0, "1秒あたりの命令実行数（短縮形）")
	fs.IntVar(&config.Scale, "scale", 0, "ウィンドウ倍率")
	fs.StringVar(&config.SoundFont, "soundfont", "", "SoundFont (.sf2) のパス")
	fs.BoolVar(&config.Mute, "mute", false, "音を出さない")
	fs.BoolVar(&config.Trace, "trace", false, "命令トレース")
	fs.BoolVar(&config.ExitOnIdle, "exit-on-idle", false, "自己ジャンプで終了")
	fs.BoolVar(&config.DumpFrames, "dump-frames", false, "画面をテキスト出力")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	// 環境変数から実行速度を取得（コマンドラインフラグが優先）
	if config.CPS == 0 {
		if cpsEnv := os.Getenv("CHIP8_CPS"); cpsEnv != "" {
			if c, err := strconv.Atoi(cpsEnv); err == nil && c > 0 {
				config.CPS = c
			}
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	// 実行速度の検証
	if config.CPS != 0 && (config.CPS < engine.MinCyclesPerSecond || config.CPS > engine.MaxCyclesPerSecond) {
		return nil, fmt.Errorf("cps must be between %d and %d, got %d", engine.MinCyclesPerSecond, engine.MaxCyclesPerSecond, config.CPS)
	}

	// 倍率の検証
	if config.Scale < 0 || config.Scale > MaxScale {
		return nil, fmt.Errorf("scale must be between 1 and %d, got %d", MaxScale, config.Scale)
	}

	// ヘッドレスとモニタは同時に使えない
	if config.Headless && config.TUI {
		return nil, fmt.Errorf("--headless and --tui cannot be combined")
	}

	// 位置引数（ROM のパス）
	if fs.NArg() > 0 {
		config.RomPath = fs.Arg(0)
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// -t=5 のように値が含まれている場合はそのまま
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}

			// 次の引数が値である可能性をチェック
			// （-t 5 のような場合）
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				// ブール型フラグでない場合は次の引数も追加
				if !boolFlags[name] {
					i++
					flags = append(flags, args[i])
				}
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `chip-et - CHIP-8 Interpreter

Usage:
  chip-et [options] [rom-path]

Arguments:
  rom-path      ROM ファイル (.ch8 .c8 .rom)、または ROM を含むディレクトリ（省略可）
                ディレクトリを指定した場合、起動時に ROM を選択

Options:
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  -c, --cps <n>               1秒あたりの命令実行数（デフォルト: %d）
  --scale <n>                 ウィンドウ倍率 1-%d（デフォルト: 10）
  --soundfont <path>          ブザー音に使う SoundFont (.sf2)
  --mute                      音を出さない
  --trace                     実行した命令をデバッグログに出力
  --headless                  ヘッドレスモード（GUIなし）
  --exit-on-idle              自己ジャンプで停止したら終了（ヘッドレス）
  --dump-frames               画面をテキストで標準出力に書く（ヘッドレス）
  --tui                       ターミナルモニタで実行
  -h, --help                  このヘルプを表示

Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル
  CHIP8_CPS=<n>               1秒あたりの命令実行数

Keys:
  1 2 3 4 / Q W E R / A S D F / Z X C V   CHIP-8 キーパッド
  F1 リロード  P 一時停止  Esc メニューに戻る／終了

Examples:
  chip-et games/PONG.ch8                  ROM を指定して起動
  chip-et games/                          ディレクトリ内の ROM を選択
  chip-et --cps 1000 games/INVADERS.ch8   実行速度を変更
  chip-et --headless --exit-on-idle --dump-frames test.ch8
  chip-et --tui games/PONG.ch8            ターミナルモニタで実行
  HEADLESS=1 TIMEOUT=5 chip-et test.ch8   環境変数でヘッドレスモード
`, engine.DefaultCyclesPerSecond, MaxScale)
}
