package window

import (
	"bufio"
	"context"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/zurustar/chip-et/pkg/logger"
	"github.com/zurustar/chip-et/pkg/rom"
	"github.com/zurustar/chip-et/pkg/vm"
	"golang.org/x/image/font/basicfont"
)

var (
	// 選択画面の背景色 #0087C8
	menuBackgroundColor = color.RGBA{0x00, 0x87, 0xC8, 0xFF}
	// テキスト色（白）
	textColor = color.White
	// 選択中のテキスト色（黄色）
	selectedTextColor = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	// 停止時のステータス色（赤）
	errorTextColor = color.RGBA{0xFF, 0x40, 0x40, 0xFF}
	// デフォルトフォント
	defaultFace = text.NewGoXFace(basicfont.Face7x13)

	// 画面の既定色
	DefaultForeground = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	DefaultBackground = color.RGBA{0x00, 0x00, 0x00, 0xFF}
)

// DefaultScale 既定のウィンドウ倍率（640x320）
const DefaultScale = 10

// 選択画面の1行の高さ
const lineHeight = 16

// Mode はウィンドウの表示モードを表す
type Mode int

const (
	ModeSelection Mode = iota // ROM 選択画面
	ModeRun                   // ROM 実行中
)

// Runner は実行中の ROM を駆動する（engine.Runner が実装する）
type Runner interface {
	Frame(elapsed time.Duration) (int, error)
	SetKeys(keys [vm.NumKeys]bool)
	Reload() error
	TogglePause() bool
	Paused() bool
	Halted() error
	SoundTimer() uint8
	View(fn func(m *vm.VM))
}

// Beeper はサウンドタイマーに合わせて音を鳴らす（audio.Beeper が実装する）
type Beeper interface {
	Update(soundTimer uint8)
}

// Options は画面の見た目と入力の設定
type Options struct {
	Scale      int
	Foreground color.RGBA
	Background color.RGBA
	Keymap     Keymap
	Timeout    time.Duration
}

// DefaultOptions 既定の設定を返す
func DefaultOptions() Options {
	return Options{
		Scale:      DefaultScale,
		Foreground: DefaultForeground,
		Background: DefaultBackground,
		Keymap:     DefaultKeymap(),
	}
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	mode          Mode      // 現在のモード
	roms          []rom.Rom // 利用可能な ROM 一覧
	selectedIndex int       // 選択中の ROM のインデックス
	selectedRom   *rom.Rom  // 選択された ROM
	opts          Options
	startTime     time.Time // 開始時刻

	runner Runner
	beeper Beeper

	// 画面バッファ（64x32 RGBA）
	fbImage *ebiten.Image
	pixels  []byte

	// ROM 選択時のコールバック（Runner を用意して SetRunner する）
	onRomSelected   func(r *rom.Rom) error
	transitionError error // モード遷移時のエラー

	hasRomSelection bool         // 選択画面があるかどうか（複数 ROM 時 true）
	onRomExit       func() error // ROM 終了時のコールバック

	// キー入力の取得（テストで差し替える）
	isKeyPressed     func(ebiten.Key) bool
	isKeyJustPressed func(ebiten.Key) bool

	mu sync.RWMutex
}

// NewGame Gameを作成
func NewGame(mode Mode, roms []rom.Rom, opts Options) *Game {
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	return &Game{
		mode:             mode,
		roms:             roms,
		opts:             opts,
		startTime:        time.Now(),
		pixels:           make([]byte, vm.DisplayWidth*vm.DisplayHeight*4),
		isKeyPressed:     ebiten.IsKeyPressed,
		isKeyJustPressed: inpututil.IsKeyJustPressed,
	}
}

// SetRunner 実行する ROM の Runner を設定する
func (g *Game) SetRunner(r Runner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runner = r
}

// SetBeeper ブザーを設定する
func (g *Game) SetBeeper(b Beeper) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.beeper = b
}

// SetOnRomSelected 選択画面で ROM が選ばれたときのコールバックを設定する
// コールバックの中で SetRunner を呼び、実行モードに入る準備をする
func (g *Game) SetOnRomSelected(callback func(r *rom.Rom) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRomSelected = callback
}

// SetHasRomSelection 選択画面に戻れるかどうかを設定する
// true のとき実行中の Esc は選択画面に戻り、false のときは終了する
func (g *Game) SetHasRomSelection(has bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasRomSelection = has
}

// SetOnRomExit ROM を終了して選択画面に戻るときのコールバックを設定する
func (g *Game) SetOnRomExit(callback func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRomExit = callback
}

// GetTransitionError モード遷移時に発生したエラーを返す
func (g *Game) GetTransitionError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transitionError
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.opts.Timeout > 0 && time.Since(g.startTime) >= g.opts.Timeout {
		return ebiten.Termination
	}

	switch g.mode {
	case ModeSelection:
		return g.updateSelection()
	case ModeRun:
		return g.updateRun(time.Second / time.Duration(ebiten.TPS()))
	}

	return nil
}

// updateSelection ROM 選択画面の更新
func (g *Game) updateSelection() error {
	if len(g.roms) == 0 {
		if g.isKeyJustPressed(ebiten.KeyEscape) {
			return ebiten.Termination
		}
		return nil
	}

	// 上矢印キー（1回だけ反応）
	if g.isKeyJustPressed(ebiten.KeyUp) {
		if g.selectedIndex > 0 {
			g.selectedIndex--
		}
	}

	// 下矢印キー（1回だけ反応）
	if g.isKeyJustPressed(ebiten.KeyDown) {
		if g.selectedIndex < len(g.roms)-1 {
			g.selectedIndex++
		}
	}

	// Enterキー（1回だけ反応）
	if g.isKeyJustPressed(ebiten.KeyEnter) {
		g.selectedRom = &g.roms[g.selectedIndex]

		g.mu.RLock()
		callback := g.onRomSelected
		g.mu.RUnlock()

		if callback != nil {
			// コールバックで Runner を用意してから実行モードに遷移
			if err := callback(g.selectedRom); err != nil {
				g.mu.Lock()
				g.transitionError = err
				g.mu.Unlock()
				return ebiten.Termination
			}
			g.mu.Lock()
			g.mode = ModeRun
			g.startTime = time.Now() // タイムアウトをリセット
			g.mu.Unlock()
			return nil
		}

		// コールバックがない場合は選択結果を持って終了
		return ebiten.Termination
	}

	// Escキー（1回だけ反応）
	if g.isKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	return nil
}

// updateRun 実行中の更新
// キー状態を Runner に渡し、1フレーム分の時間だけ VM を進め、ブザーを駆動する
func (g *Game) updateRun(elapsed time.Duration) error {
	// Escキーで終了または選択画面に戻る
	if g.isKeyJustPressed(ebiten.KeyEscape) {
		g.mu.RLock()
		hasRomSelection := g.hasRomSelection
		g.mu.RUnlock()

		if hasRomSelection {
			return g.returnToSelection()
		}
		return ebiten.Termination
	}

	g.mu.RLock()
	runner := g.runner
	beeper := g.beeper
	g.mu.RUnlock()

	if runner == nil {
		return nil
	}

	// F1 で ROM を読み直す
	if g.isKeyJustPressed(ebiten.KeyF1) {
		if err := runner.Reload(); err != nil {
			logger.GetLogger().Error("Failed to reload ROM", "error", err)
		}
	}

	// P で一時停止を切り替える
	if g.isKeyJustPressed(ebiten.KeyP) {
		paused := runner.TogglePause()
		logger.GetLogger().Info("Pause toggled", "paused", paused)
	}

	runner.SetKeys(g.opts.Keymap.Read(g.isKeyPressed))

	// 致命的エラーで停止しても、ユーザーが Esc か F1 を押すまでウィンドウは開いたまま
	// エラー内容は Draw でステータス行に表示する
	_, _ = runner.Frame(elapsed)

	if beeper != nil {
		if runner.Paused() || runner.Halted() != nil {
			beeper.Update(0)
		} else {
			beeper.Update(runner.SoundTimer())
		}
	}

	return nil
}

// returnToSelection は実行モードから ROM 選択画面に戻る
func (g *Game) returnToSelection() error {
	g.mu.RLock()
	beeper := g.beeper
	onRomExit := g.onRomExit
	g.mu.RUnlock()

	if beeper != nil {
		beeper.Update(0)
	}

	// リソースクリーンアップコールバックを呼び出す
	if onRomExit != nil {
		if err := onRomExit(); err != nil {
			logger.GetLogger().Error("onRomExit callback failed", "error", err)
		}
	}

	// モードをModeSelectionに変更
	g.mu.Lock()
	g.mode = ModeSelection
	g.runner = nil
	g.beeper = nil
	g.mu.Unlock()

	return nil
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	switch g.mode {
	case ModeSelection:
		screen.Fill(menuBackgroundColor)
		g.drawSelection(screen)
	case ModeRun:
		screen.Fill(g.opts.Background)
		g.drawRun(screen)
	}
}

// drawSelection ROM 選択画面の描画
func (g *Game) drawSelection(screen *ebiten.Image) {
	_, h := g.Layout(0, 0)

	drawText(screen, "Select a CHIP-8 ROM", 16, 12, textColor)

	if len(g.roms) == 0 {
		drawText(screen, "No ROMs found. Press ESC to exit.", 16, 40, textColor)
		return
	}

	// 画面に収まる範囲だけ表示する
	top, visible := 40, (h-40-24)/lineHeight
	first := 0
	if g.selectedIndex >= visible {
		first = g.selectedIndex - visible + 1
	}
	for i := first; i < len(g.roms) && i < first+visible; i++ {
		prefix := "  "
		c := color.Color(textColor)
		if i == g.selectedIndex {
			prefix = "> "
			c = selectedTextColor
		}
		drawText(screen, prefix+g.roms[i].DisplayName(), 24, float64(top+(i-first)*lineHeight), c)
	}

	// 操作説明を表示
	drawText(screen, "UP/DOWN select, ENTER run, ESC exit", 16, float64(h-20), textColor)
}

// drawRun 実行中の描画
func (g *Game) drawRun(screen *ebiten.Image) {
	g.mu.RLock()
	runner := g.runner
	g.mu.RUnlock()
	if runner == nil {
		return
	}

	if g.fbImage == nil {
		g.fbImage = ebiten.NewImage(vm.DisplayWidth, vm.DisplayHeight)
	}
	runner.View(func(m *vm.VM) {
		fb := m.Framebuffer()
		FillPixels(g.pixels, fb, g.opts.Foreground, g.opts.Background)
		fb.ClearDirty()
	})
	g.fbImage.WritePixels(g.pixels)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.opts.Scale), float64(g.opts.Scale))
	screen.DrawImage(g.fbImage, op)

	// ステータス行
	if err := runner.Halted(); err != nil {
		drawText(screen, "HALTED: "+err.Error(), 4, 2, errorTextColor)
		drawText(screen, "F1 reload, ESC exit", 4, 18, errorTextColor)
	} else if runner.Paused() {
		drawText(screen, "PAUSED", 4, 2, selectedTextColor)
	}
}

// FillPixels フレームバッファを RGBA のバイト列に展開する
// dst は DisplayWidth*DisplayHeight*4 バイト
func FillPixels(dst []byte, fb *vm.Framebuffer, fg, bg color.RGBA) {
	for y := 0; y < vm.DisplayHeight; y++ {
		for x := 0; x < vm.DisplayWidth; x++ {
			c := bg
			if fb.At(x, y) {
				c = fg
			}
			i := (y*vm.DisplayWidth + x) * 4
			dst[i] = c.R
			dst[i+1] = c.G
			dst[i+2] = c.B
			dst[i+3] = c.A
		}
	}
}

func drawText(screen *ebiten.Image, s string, x, y float64, c color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(c)
	text.Draw(screen, s, defaultFace, op)
}

// Layout 画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return vm.DisplayWidth * g.opts.Scale, vm.DisplayHeight * g.opts.Scale
}

// GetSelectedRom 選択された ROM を取得
func (g *Game) GetSelectedRom() *rom.Rom {
	return g.selectedRom
}

// RunHeadless ヘッドレスモードで ROM 選択を実行
func RunHeadless(roms []rom.Rom, timeout time.Duration, reader io.Reader, writer io.Writer) (*rom.Rom, error) {
	if len(roms) == 0 {
		return nil, rom.ErrNoROMs
	}

	// ROM が1つの場合は自動選択
	if len(roms) == 1 {
		fmt.Fprintf(writer, "Auto-selecting ROM: %s\n", roms[0].DisplayName())
		return &roms[0], nil
	}

	// タイムアウト処理用のコンテキスト
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// ROM 一覧を表示
	fmt.Fprintln(writer, "Available ROMs:")
	for i, r := range roms {
		fmt.Fprintf(writer, "  %d: %s\n", i+1, r.DisplayName())
	}
	fmt.Fprintln(writer)

	// 選択を受け付ける
	scanner := bufio.NewScanner(reader)
	resultCh := make(chan *rom.Rom, 1)
	errCh := make(chan error, 1)

	go func() {
		for {
			fmt.Fprint(writer, "Select a ROM (1-", len(roms), ") or 'q' to quit: ")
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					errCh <- fmt.Errorf("failed to read input: %w", err)
				} else {
					errCh <- fmt.Errorf("input closed")
				}
				return
			}

			input := strings.TrimSpace(scanner.Text())

			// 終了コマンド
			if input == "q" || input == "Q" {
				errCh <- fmt.Errorf("user cancelled")
				return
			}

			// 数値に変換
			num, err := strconv.Atoi(input)
			if err != nil {
				fmt.Fprintln(writer, "Invalid input. Please enter a number.")
				continue
			}

			// 範囲チェック
			if num < 1 || num > len(roms) {
				fmt.Fprintf(writer, "Invalid selection. Please enter a number between 1 and %d.\n", len(roms))
				continue
			}

			selected := &roms[num-1]
			fmt.Fprintf(writer, "Selected: %s\n", selected.DisplayName())
			resultCh <- selected
			return
		}
	}()

	// タイムアウトまたは選択完了を待つ
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout")
	case err := <-errCh:
		return nil, err
	case selected := <-resultCh:
		return selected, nil
	}
}

// Run GUIモードでウィンドウを実行
func Run(game *Game, title string) (*rom.Rom, error) {
	w, h := game.Layout(0, 0)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle(title)
	// リサイズ時は Ebitengine がアスペクト比を保って拡大しレターボックスを付ける
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		return nil, fmt.Errorf("failed to run game: %w", err)
	}

	return game.GetSelectedRom(), nil
}
