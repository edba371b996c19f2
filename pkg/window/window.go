package window

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"github.com/zurustar/stcr/pkg/engine"
	"github.com/zurustar/stcr/pkg/logger"
	"github.com/zurustar/stcr/pkg/vm"
)

// 画面サイズ
const (
	ScreenWidth  = 1024
	ScreenHeight = 768
)

// 行の高さ（basicfont.Face7x13 に合わせる）
const lineHeight = 16

var (
	// 背景色 #0087C8
	backgroundColor = color.RGBA{0x00, 0x87, 0xC8, 0xFF}
	// テキスト色（白）
	textColor = color.White
	// 選択中のテキスト色（黄色）
	selectedTextColor = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	// 異常終了したセッションの色（赤）
	faultTextColor = color.RGBA{0xFF, 0x60, 0x60, 0xFF}
	// デフォルトフォント
	defaultFace = text.NewGoXFace(basicfont.Face7x13)
)

// Mode はウィンドウの表示モードを表す
type Mode int

const (
	ModeSelection Mode = iota // スクリプト選択画面
	ModeDesktop               // 実行画面
)

// 短いキー名の別名。それ以外は Ebitengine のキー名として解釈する
var keyAliases = map[string]ebiten.Key{
	"left":  ebiten.KeyArrowLeft,
	"right": ebiten.KeyArrowRight,
	"up":    ebiten.KeyArrowUp,
	"down":  ebiten.KeyArrowDown,
	"shift": ebiten.KeyShift,
	"ctrl":  ebiten.KeyControl,
	"alt":   ebiten.KeyAlt,
	"esc":   ebiten.KeyEscape,
}

// ParseKey はキー名を ebiten.Key に変換する（大文字小文字は区別しない）
func ParseKey(name string) (ebiten.Key, error) {
	if key, ok := keyAliases[strings.ToLower(name)]; ok {
		return key, nil
	}
	var key ebiten.Key
	if err := key.UnmarshalText([]byte(name)); err != nil {
		return 0, err
	}
	return key, nil
}

// KeyBinding はキー入力とスペシャルイベントの対応を表す
type KeyBinding struct {
	Key   ebiten.Key
	Event string
}

// ParseKeyBindings は設定ファイルの [keys] を解析する。
// キー名は Ebitengine のキー名（"Space", "Enter", "A" など）。
func ParseKeyBindings(keys map[string]string) ([]KeyBinding, error) {
	bindings := make([]KeyBinding, 0, len(keys))
	for name, event := range keys {
		key, err := ParseKey(name)
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", name, err)
		}
		if key == ebiten.KeyEscape {
			return nil, fmt.Errorf("key %q is reserved for exit", name)
		}
		if event == "" {
			return nil, fmt.Errorf("key %q: event name is required", name)
		}
		bindings = append(bindings, KeyBinding{Key: key, Event: event})
	}

	// 同じフレームで複数押された場合の発火順を固定する
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Key < bindings[j].Key
	})
	return bindings, nil
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	mode          Mode          // 現在のモード
	engine        *engine.Engine
	scripts       []string      // 選択画面に表示するスクリプト名
	selectedIndex int           // 選択中のスクリプトのインデックス
	timeout       time.Duration // 選択画面のタイムアウト時間
	startTime     time.Time     // 開始時刻

	bindings    []KeyBinding
	console     *Console
	showOverlay bool
	started     bool

	// 選択時のコールバック（セッションの起動を行う）
	onScriptSelected func(script string) error
	transitionError  error

	mu sync.RWMutex
}

// NewGame Gameを作成
func NewGame(mode Mode, eng *engine.Engine, scripts []string, timeout time.Duration) *Game {
	return &Game{
		mode:        mode,
		engine:      eng,
		scripts:     scripts,
		timeout:     timeout,
		startTime:   time.Now(),
		showOverlay: true,
	}
}

// SetKeyBindings キー割り当てを設定
func (g *Game) SetKeyBindings(bindings []KeyBinding) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bindings = bindings
}

// SetConsole @Print の出力を表示するコンソールを設定
func (g *Game) SetConsole(c *Console) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.console = c
}

// SetOnScriptSelected 選択画面で Enter が押されたときのコールバックを設定
func (g *Game) SetOnScriptSelected(callback func(script string) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onScriptSelected = callback
}

// GetTransitionError モード遷移時に発生したエラーを返す
func (g *Game) GetTransitionError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transitionError
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	switch g.mode {
	case ModeSelection:
		// 選択画面のタイムアウト（実行中はエンジン側で判定する）
		if g.timeout > 0 && time.Since(g.startTime) >= g.timeout {
			return ebiten.Termination
		}
		return g.updateSelection()
	case ModeDesktop:
		return g.updateDesktop()
	}

	return nil
}

// updateSelection スクリプト選択画面の更新
func (g *Game) updateSelection() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		g.moveSelection(-1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		g.moveSelection(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		return g.confirmSelection()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	return nil
}

// moveSelection 選択位置を範囲内で移動する
func (g *Game) moveSelection(delta int) {
	next := g.selectedIndex + delta
	if next < 0 || next >= len(g.scripts) {
		return
	}
	g.selectedIndex = next
}

// confirmSelection 選択中のスクリプトでセッションを起動し実行画面に遷移する
func (g *Game) confirmSelection() error {
	if len(g.scripts) == 0 {
		return ebiten.Termination
	}

	g.mu.RLock()
	callback := g.onScriptSelected
	g.mu.RUnlock()

	if callback != nil {
		if err := callback(g.scripts[g.selectedIndex]); err != nil {
			g.mu.Lock()
			g.transitionError = err
			g.mu.Unlock()
			return ebiten.Termination
		}
	}

	g.mu.Lock()
	g.mode = ModeDesktop
	g.mu.Unlock()
	return nil
}

// updateDesktop 実行画面の更新。1フレームにつきエンジンを1ティック進める
func (g *Game) updateDesktop() error {
	// 最初のフレームでエンジンを開始する（タイムアウトはここから計測）
	if !g.started {
		g.started = true
		g.engine.Start()
	}

	// Escキーで終了
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.engine.Terminate()
		return ebiten.Termination
	}

	// F1でオーバーレイの表示を切り替える
	if inpututil.IsKeyJustPressed(ebiten.KeyF1) {
		g.showOverlay = !g.showOverlay
	}

	g.processKeyboardEvents()

	return g.tick()
}

// tick エンジンを1ティック進める
func (g *Game) tick() error {
	if err := g.engine.Update(); err != nil {
		if errors.Is(err, engine.ErrTerminated) {
			return ebiten.Termination
		}
		return err
	}
	return nil
}

// processKeyboardEvents 割り当てられたキーが押されたらスペシャルイベントを送る
func (g *Game) processKeyboardEvents() {
	g.mu.RLock()
	bindings := g.bindings
	g.mu.RUnlock()

	for _, b := range bindings {
		if inpututil.IsKeyJustPressed(b.Key) {
			g.engine.PostEvent(b.Event, "")
		}
	}
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	switch g.mode {
	case ModeSelection:
		g.drawSelection(screen)
	case ModeDesktop:
		g.drawDesktop(screen)
	}
}

// drawSelection スクリプト選択画面の描画
func (g *Game) drawSelection(screen *ebiten.Image) {
	drawText(screen, "Select a script", 50, 50, textColor)

	for i, name := range g.scripts {
		prefix := "  "
		clr := color.Color(textColor)
		if i == g.selectedIndex {
			prefix = "> "
			clr = selectedTextColor
		}
		drawText(screen, prefix+name, 70, 120+float64(i*40), clr)
	}

	drawText(screen, "Use UP/DOWN to select, ENTER to run, ESC to exit", 50, 650, textColor)
}

// drawDesktop 実行画面の描画。セッションの状態とコンソール出力を表示する
func (g *Game) drawDesktop(screen *ebiten.Image) {
	y := 20.0
	if g.showOverlay {
		for _, st := range g.engine.Statuses() {
			clr := color.Color(textColor)
			if st.Fault != nil {
				clr = faultTextColor
			}
			drawText(screen, FormatStatus(st), 20, y, clr)
			y += lineHeight
		}
		y += lineHeight
	}

	g.mu.RLock()
	console := g.console
	g.mu.RUnlock()
	if console == nil {
		return
	}

	maxLines := int((ScreenHeight - y - lineHeight) / lineHeight)
	for _, line := range console.Tail(maxLines) {
		drawText(screen, line, 20, y, textColor)
		y += lineHeight
	}
}

func drawText(screen *ebiten.Image, s string, x, y float64, clr color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, s, defaultFace, op)
}

// FormatStatus セッション状態を1行の文字列にする
func FormatStatus(st engine.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.8s %s", st.ID, st.Script)
	if st.Segment != "" {
		fmt.Fprintf(&b, "/%s", st.Segment)
	}
	fmt.Fprintf(&b, " %s", st.State)
	if st.HaltReason != vm.NotHalted {
		fmt.Fprintf(&b, "(%s)", st.HaltReason)
	}
	fmt.Fprintf(&b, " pc=%d line=%d depth=%d vars=%d", st.Pointer, st.Line, st.CallDepth, st.Variables)
	if st.Fault != nil {
		fmt.Fprintf(&b, " error=%v", st.Fault)
	}
	return b.String()
}

// Layout 画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}

// SelectScript ヘッドレスモードで標準入力からスクリプトを選択する
func SelectScript(scripts []string, timeout time.Duration, reader io.Reader, writer io.Writer) (string, error) {
	if len(scripts) == 0 {
		return "", fmt.Errorf("no scripts to select")
	}

	// スクリプトが1つの場合は自動選択
	if len(scripts) == 1 {
		fmt.Fprintf(writer, "Auto-selecting script: %s\n", scripts[0])
		return scripts[0], nil
	}

	// タイムアウト処理用のコンテキスト
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fmt.Fprintln(writer, "Available scripts:")
	for i, name := range scripts {
		fmt.Fprintf(writer, "  %d: %s\n", i+1, name)
	}
	fmt.Fprintln(writer)

	scanner := bufio.NewScanner(reader)
	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		for {
			fmt.Fprint(writer, "Select a script (1-", len(scripts), ") or 'q' to quit: ")
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					errCh <- fmt.Errorf("failed to read input: %w", err)
				} else {
					errCh <- fmt.Errorf("input closed")
				}
				return
			}

			input := strings.TrimSpace(scanner.Text())

			if input == "q" || input == "Q" {
				errCh <- fmt.Errorf("user cancelled")
				return
			}

			num, err := strconv.Atoi(input)
			if err != nil {
				fmt.Fprintln(writer, "Invalid input. Please enter a number.")
				continue
			}
			if num < 1 || num > len(scripts) {
				fmt.Fprintf(writer, "Invalid selection. Please enter a number between 1 and %d.\n", len(scripts))
				continue
			}

			selected := scripts[num-1]
			fmt.Fprintf(writer, "Selected: %s\n", selected)
			resultCh <- selected
			return
		}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("timeout")
	case err := <-errCh:
		return "", err
	case selected := <-resultCh:
		return selected, nil
	}
}

// Run GUIモードでウィンドウを実行
func Run(game *Game, title string) error {
	ebiten.SetWindowSize(ScreenWidth, ScreenHeight)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		return fmt.Errorf("failed to run game: %w", err)
	}
	if err := game.GetTransitionError(); err != nil {
		return err
	}

	logger.GetLogger().Debug("Window closed")
	return nil
}
