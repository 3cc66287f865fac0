package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/zurustar/chip-et/pkg/cli"
	"github.com/zurustar/chip-et/pkg/config"
	"github.com/zurustar/chip-et/pkg/engine"
	"github.com/zurustar/chip-et/pkg/logger"
	"github.com/zurustar/chip-et/pkg/monitor"
	"github.com/zurustar/chip-et/pkg/rom"
	"github.com/zurustar/chip-et/pkg/vm"
	"github.com/zurustar/chip-et/pkg/vm/audio"
	"github.com/zurustar/chip-et/pkg/window"
)

// WindowTitle はウィンドウのタイトル
const WindowTitle = "chip-et"

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config   *cli.Config
	settings *config.Settings
	log      *slog.Logger
	embedFS  fs.FS
	registry *rom.Registry

	// モニタ実行時のログの出力先
	status *monitor.StatusWriter

	// 実行中の ROM
	runner *engine.Runner
	beeper *audio.Beeper

	// テストで差し替える
	stdin  io.Reader
	stdout io.Writer
}

// New Applicationを作成
// embedFS は roms/ と soundfonts/ を含む埋め込みファイルシステム（なければ nil）
func New(embedFS fs.FS) *Application {
	return &Application{
		embedFS: embedFS,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Info("Application started")

	// 3. ユーザー設定の読み込み
	if err := app.loadSettings(); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// 4. ROM の一覧と選択
	roms, selected, needsSelection, err := app.loadRoms()
	if err != nil {
		return fmt.Errorf("failed to load ROMs: %w", err)
	}

	defer app.stopRom()

	// 5. フロントエンドの実行
	switch {
	case app.config.Headless:
		err = app.runHeadless(roms, selected)
	case app.config.TUI:
		err = app.runMonitor(roms, selected)
	default:
		err = app.runWindow(roms, selected, needsSelection)
	}
	if err != nil {
		return err
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	cfg, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = cfg
	return nil
}

// initLogger ロガーを初期化
// モニタ実行時は端末を gocui が使うので、ログはモニタのログ欄に送る
func (app *Application) initLogger() error {
	if app.config.TUI {
		app.status = monitor.NewStatusWriter(os.Stderr)
		if err := logger.InitLoggerWriter(app.config.LogLevel, app.status); err != nil {
			return err
		}
	} else if err := logger.InitLogger(app.config.LogLevel); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// loadSettings ユーザー設定を読み込む（ファイルがなければ空の設定）
func (app *Application) loadSettings() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	app.settings = settings
	if settings.Path() != "" {
		app.log.Info("User settings loaded", "path", settings.Path())
	}
	return nil
}

// loadRoms ROM の一覧を作り、自動選択できるかどうかを判定する
func (app *Application) loadRoms() ([]rom.Rom, *rom.Rom, bool, error) {
	app.registry = rom.NewRegistry(app.embedFS)

	// 外部 ROM の読み込み（指定されている場合）
	if app.config.RomPath != "" {
		if err := app.registry.LoadExternal(app.config.RomPath); err != nil {
			return nil, nil, false, err
		}
	}

	selected, needsSelection, err := app.registry.Select()
	if err != nil {
		return nil, nil, false, err
	}

	roms := app.registry.Available()
	app.log.Info("ROMs available", "count", len(roms), "needs_selection", needsSelection)
	return roms, selected, needsSelection, nil
}

// resolveCPS 実行速度を決める
// フラグ（環境変数を含む）、ROM のサイドカー、ユーザー設定、既定値の順に優先する
func (app *Application) resolveCPS(r *rom.Rom) int {
	if app.config.CPS > 0 {
		return app.config.CPS
	}
	if r != nil && r.CyclesPerSecond() > 0 {
		return r.CyclesPerSecond()
	}
	if app.settings != nil && app.settings.CyclesPerSecond > 0 {
		return app.settings.CyclesPerSecond
	}
	return engine.DefaultCyclesPerSecond
}

// windowOptions フラグとユーザー設定から画面の設定を作る
func (app *Application) windowOptions() (window.Options, error) {
	opts := window.DefaultOptions()
	opts.Timeout = app.config.Timeout

	s := app.settings
	if s == nil {
		s = &config.Settings{}
	}

	switch {
	case app.config.Scale > 0:
		opts.Scale = app.config.Scale
	case s.Scale > 0:
		opts.Scale = s.Scale
	}

	if s.Foreground != "" {
		c, err := config.ParseColor(s.Foreground)
		if err != nil {
			return opts, err
		}
		opts.Foreground = c
	}
	if s.Background != "" {
		c, err := config.ParseColor(s.Background)
		if err != nil {
			return opts, err
		}
		opts.Background = c
	}

	km, err := window.ParseKeymap(s.Keys)
	if err != nil {
		return opts, err
	}
	opts.Keymap = km
	return opts, nil
}

// muted 音を出さない設定かどうか
func (app *Application) muted() bool {
	return app.config.Mute || (app.settings != nil && app.settings.Mute)
}

// startRom ROM を読み込み、VM と Runner を用意する
// withSound が true で消音でなければブザーも用意する
func (app *Application) startRom(r *rom.Rom, withSound bool) error {
	app.stopRom()

	data, err := r.Load()
	if err != nil {
		return err
	}

	cps := app.resolveCPS(r)
	machine := vm.New(vm.WithLogger(app.log), vm.WithTrace(app.config.Trace))
	runner, err := engine.NewRunner(machine, data, cps, engine.WithLogger(app.log))
	if err != nil {
		return err
	}
	app.runner = runner

	app.log.Info("ROM loaded",
		"name", r.DisplayName(),
		"path", r.Path,
		"embedded", r.IsEmbedded,
		"size", len(data),
		"cps", cps)
	if r.Info != nil {
		for _, line := range r.Info.Description {
			app.log.Debug("ROM description", "text", line)
		}
	}

	if withSound && !app.muted() {
		beeper, err := audio.NewBeeper(app.newStream(r), audio.WithLogger(app.log))
		if err != nil {
			// 音が出なくても実行は続ける
			app.log.Warn("Audio unavailable", "error", err)
		} else {
			app.beeper = beeper
		}
	}
	return nil
}

// stopRom 実行中の ROM の資源を解放する
func (app *Application) stopRom() error {
	var err error
	if app.beeper != nil {
		err = app.beeper.Close()
		app.beeper = nil
	}
	app.runner = nil
	return err
}

// selectFromStdin 標準入出力で ROM を選ぶ（ヘッドレスとモニタ用）
func (app *Application) selectFromStdin(roms []rom.Rom, selected *rom.Rom) (*rom.Rom, error) {
	if selected != nil {
		return selected, nil
	}
	app.log.Info("Multiple ROMs available, reading selection from stdin", "count", len(roms))
	return window.RunHeadless(roms, app.config.Timeout, app.stdin, app.stdout)
}

// runHeadless ウィンドウなしで実行する
func (app *Application) runHeadless(roms []rom.Rom, selected *rom.Rom) error {
	r, err := app.selectFromStdin(roms, selected)
	if err != nil {
		return fmt.Errorf("failed to select ROM: %w", err)
	}
	if err := app.startRom(r, false); err != nil {
		return fmt.Errorf("failed to start ROM: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := engine.HeadlessOptions{
		Timeout:    app.config.Timeout,
		ExitOnIdle: app.config.ExitOnIdle,
	}
	if app.config.DumpFrames {
		opts.FrameOutput = app.stdout
	}
	return engine.RunHeadless(ctx, app.runner, opts)
}

// runMonitor ターミナルモニタで実行する
func (app *Application) runMonitor(roms []rom.Rom, selected *rom.Rom) error {
	r, err := app.selectFromStdin(roms, selected)
	if err != nil {
		return fmt.Errorf("failed to select ROM: %w", err)
	}
	if err := app.startRom(r, true); err != nil {
		return fmt.Errorf("failed to start ROM: %w", err)
	}

	opts := []monitor.Option{
		monitor.WithLogger(app.log),
		monitor.WithStatusWriter(app.status),
	}
	if app.beeper != nil {
		opts = append(opts, monitor.WithBeeper(app.beeper))
	}
	m := monitor.New(app.runner, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return m.Run(ctx, app.config.Timeout)
}

// runWindow ウィンドウで実行する
// 複数の ROM がある場合は選択画面から始め、Esc で選択画面に戻る
func (app *Application) runWindow(roms []rom.Rom, selected *rom.Rom, needsSelection bool) error {
	opts, err := app.windowOptions()
	if err != nil {
		return fmt.Errorf("invalid display settings: %w", err)
	}

	if needsSelection {
		app.log.Info("Multiple ROMs available, showing selection screen", "count", len(roms))
		game := window.NewGame(window.ModeSelection, roms, opts)
		game.SetHasRomSelection(true)
		game.SetOnRomSelected(func(r *rom.Rom) error {
			if err := app.startRom(r, true); err != nil {
				return err
			}
			app.attach(game)
			return nil
		})
		game.SetOnRomExit(app.stopRom)

		if _, err := window.Run(game, WindowTitle); err != nil {
			return err
		}
		if err := game.GetTransitionError(); err != nil {
			return fmt.Errorf("failed to start ROM: %w", err)
		}
		return nil
	}

	if err := app.startRom(selected, true); err != nil {
		return fmt.Errorf("failed to start ROM: %w", err)
	}
	game := window.NewGame(window.ModeRun, []rom.Rom{*selected}, opts)
	app.attach(game)

	_, err = window.Run(game, WindowTitle+" - "+selected.DisplayName())
	return err
}

// attach 実行中の Runner とブザーを画面に渡す
func (app *Application) attach(game *window.Game) {
	game.SetRunner(app.runner)
	if app.beeper != nil {
		game.SetBeeper(app.beeper)
	}
}
