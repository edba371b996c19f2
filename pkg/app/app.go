// Package app はstcrコマンドのアプリケーションロジックを実装する
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/zurustar/stcr/pkg/cli"
	"github.com/zurustar/stcr/pkg/compiler"
	"github.com/zurustar/stcr/pkg/config"
	"github.com/zurustar/stcr/pkg/engine"
	"github.com/zurustar/stcr/pkg/logger"
	"github.com/zurustar/stcr/pkg/program"
	"github.com/zurustar/stcr/pkg/script"
	"github.com/zurustar/stcr/pkg/vm"
	"github.com/zurustar/stcr/pkg/window"
)

// ウィンドウタイトル
const windowTitle = "stcr - STCR interpreter"

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config   *cli.Config
	file     *config.File // 設定ファイル（なければnil）
	settings settings
	log      *slog.Logger
	registry *program.Registry

	stdin     io.Reader
	stdout    io.Writer
	logOutput io.Writer
}

// settings はフラグ・環境変数・設定ファイルを統合した実行時設定
type settings struct {
	logLevel  string
	jsonLogs  bool
	timeout   time.Duration
	tick      time.Duration
	headless  bool
	encoding  string
	scriptDir string // スクリプトを読み込むディレクトリ
	entry     string // 単一ファイル指定時のファイルパス
}

// Option はApplicationの設定オプション
type Option func(*Application)

// WithStdin イベントやスクリプト選択の入力元を指定する
func WithStdin(r io.Reader) Option {
	return func(app *Application) {
		app.stdin = r
	}
}

// WithStdout スクリプトの出力先を指定する
func WithStdout(w io.Writer) Option {
	return func(app *Application) {
		app.stdout = w
	}
}

// WithLogOutput ログの出力先を指定する
func WithLogOutput(w io.Writer) Option {
	return func(app *Application) {
		app.logOutput = w
	}
}

// New Applicationを作成
func New(opts ...Option) *Application {
	app := &Application{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		logOutput: os.Stderr,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
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

	// 2. 設定ファイルの読み込みと設定の統合
	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := app.resolveSettings(); err != nil {
		return err
	}

	// 3. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Info("Application started")

	// 4. スクリプトの読み込みとコンパイル
	if err := app.loadPrograms(); err != nil {
		return fmt.Errorf("failed to load scripts: %w", err)
	}
	app.log.Info("Scripts compiled successfully", "count", app.registry.Len())

	// 5. コンパイルのみの場合はアーティファクトを書き出して終了
	if app.config.Compile {
		return app.writeArtifacts()
	}

	// 6. 実行
	if err := app.execute(); err != nil {
		return err
	}

	app.log.Info("Application terminated normally")
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// loadConfig 設定ファイルを読み込む。
// --config 指定がなければスクリプトの場所から上位ディレクトリへ stcr.toml を探す
func (app *Application) loadConfig() error {
	if app.config.ConfigPath != "" {
		f, err := config.Load(app.config.ConfigPath)
		if err != nil {
			return err
		}
		app.file = f
		return nil
	}

	start := "."
	if p := app.config.ScriptPath; p != "" {
		start = p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			start = filepath.Dir(p)
		}
	}
	f, err := config.FindAndLoad(start)
	if err != nil {
		return err
	}
	app.file = f
	return nil
}

// resolveSettings 設定を統合する（フラグ・環境変数 > 設定ファイル > デフォルト）
func (app *Application) resolveSettings() error {
	c := app.config
	s := settings{
		logLevel: c.LogLevel,
		timeout:  c.Timeout,
		tick:     c.Tick,
		headless: c.Headless,
		encoding: c.Encoding,
	}

	if f := app.file; f != nil {
		if !c.IsSet("log-level") && f.Host.LogLevel != "" {
			s.logLevel = strings.ToLower(f.Host.LogLevel)
		}
		s.jsonLogs = f.Host.JSONLogs
		if !c.IsSet("timeout") {
			s.timeout = f.TimeoutDuration()
		}
		if !c.IsSet("tick") {
			s.tick = f.TickDuration()
		}
		if !c.IsSet("headless") && f.Host.Headless != nil {
			s.headless = *f.Host.Headless
		}
		if !c.IsSet("encoding") {
			s.encoding = f.Host.Encoding
		}
		s.scriptDir = f.ScriptDir()
	}

	// 位置引数はファイルまたはディレクトリ
	if p := c.ScriptPath; p != "" {
		p, err := script.FindFile(p)
		if err != nil {
			return fmt.Errorf("script path: %w", err)
		}
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("script path: %w", err)
		}
		if info.IsDir() {
			s.scriptDir = p
		} else {
			if !script.IsScriptFile(p) {
				return fmt.Errorf("not a script file: %s", p)
			}
			s.entry = p
			s.scriptDir = filepath.Dir(p)
		}
	}
	if s.scriptDir == "" {
		s.scriptDir = "."
	}

	app.settings = s
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	opts := []logger.Option{
		logger.WithOutput(app.logOutput),
		logger.WithJSON(app.settings.jsonLogs),
	}
	if err := logger.InitLogger(app.settings.logLevel, opts...); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	if app.file != nil {
		app.log.Debug("Config file loaded", "dir", app.file.Dir)
	}
	return nil
}

// loadPrograms スクリプトを読み込んでレジストリを作成する
func (app *Application) loadPrograms() error {
	loader := script.NewLoader(app.settings.scriptDir, script.WithEncoding(app.settings.encoding))

	// 単一ファイル指定時はそのファイルだけをコンパイルする
	if app.settings.entry != "" {
		s, err := loader.LoadFile(app.settings.entry)
		if err != nil {
			return err
		}
		res := compiler.CompileScripts([]script.Script{*s})[0]
		if res.Err != nil {
			return res.Err
		}
		app.registry = program.NewRegistry()
		return app.registry.Register(res.Name, res.Program)
	}

	reg, err := compiler.LoadRegistry(loader)
	if err != nil {
		return err
	}
	app.registry = reg
	return nil
}

// writeArtifacts コンパイル済みプログラムを .stcrc として書き出す
func (app *Application) writeArtifacts() error {
	names := app.registry.Names()
	if app.config.Output != "" && len(names) != 1 {
		return fmt.Errorf("--output requires a single script, found %d", len(names))
	}

	for _, name := range names {
		p, _ := app.registry.Get(name)
		data, err := program.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}

		path := app.config.Output
		if path == "" {
			path = filepath.Join(app.settings.scriptDir, name+program.Extension)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		app.log.Info("Artifact written", "script", name, "path", path, "bytes", len(data))
	}
	return nil
}

// sessionSpecs 起動するセッションを決める。
// 選択が必要な場合は nil を返す
func (app *Application) sessionSpecs() []config.Session {
	if app.settings.entry != "" {
		return []config.Session{{Script: script.NameOf(app.settings.entry), Segment: app.config.Segment}}
	}
	if app.file != nil && len(app.file.Sessions) > 0 {
		return app.file.Sessions
	}
	if names := app.registry.Names(); len(names) == 1 {
		return []config.Session{{Script: names[0], Segment: app.config.Segment}}
	}
	return nil
}

// newEngine エンジンを作成する
func (app *Application) newEngine(out io.Writer) *engine.Engine {
	return engine.NewEngine(app.registry,
		engine.WithLogger(app.log),
		engine.WithTimeout(app.settings.timeout),
		engine.WithVMOptions(vm.WithOutput(out)),
		// GUIではセッション終了後もウィンドウを開いたままにする
		engine.WithKeepAlive(!app.settings.headless),
	)
}

// spawn セッションを起動する
func (app *Application) spawn(eng *engine.Engine, specs []config.Session) error {
	for _, spec := range specs {
		segment := spec.Segment
		if segment == "" && app.settings.entry == "" {
			segment = app.config.Segment
		}
		if _, err := eng.Spawn(spec.Script, segment); err != nil {
			return err
		}
	}
	return nil
}

// execute セッションを起動してエンジンを実行する
func (app *Application) execute() error {
	if app.settings.headless {
		return app.runHeadless()
	}
	return app.runWindow()
}

// runHeadless ヘッドレスモードで実行
func (app *Application) runHeadless() error {
	specs := app.sessionSpecs()
	if specs == nil {
		app.log.Info("Multiple scripts available, selecting from stdin", "count", app.registry.Len())
		name, err := window.SelectScript(app.registry.Names(), app.settings.timeout, app.stdin, app.stdout)
		if err != nil {
			return fmt.Errorf("failed to select script: %w", err)
		}
		specs = []config.Session{{Script: name}}
	}

	eng := app.newEngine(app.stdout)
	if err := app.spawn(eng, specs); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.config.StdinEvents {
		go app.readEvents(ctx, eng)
	}

	if err := eng.Run(ctx, app.settings.tick); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("engine stopped: %w", err)
	}
	return app.checkFaults(eng)
}

// runWindow GUIモードで実行
func (app *Application) runWindow() error {
	var bindings []window.KeyBinding
	if app.file != nil && len(app.file.Keys) > 0 {
		var err error
		if bindings, err = window.ParseKeyBindings(app.file.Keys); err != nil {
			return fmt.Errorf("invalid key bindings: %w", err)
		}
	}

	console := window.NewConsole(window.DefaultConsoleLines)
	eng := app.newEngine(io.MultiWriter(app.stdout, console))

	mode := window.ModeDesktop
	specs := app.sessionSpecs()
	if specs == nil {
		mode = window.ModeSelection
	} else if err := app.spawn(eng, specs); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	game := window.NewGame(mode, eng, app.registry.Names(), app.settings.timeout)
	game.SetKeyBindings(bindings)
	game.SetConsole(console)
	game.SetOnScriptSelected(func(name string) error {
		return app.spawn(eng, []config.Session{{Script: name}})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if app.config.StdinEvents {
		go app.readEvents(ctx, eng)
	}

	if err := window.Run(game, windowTitle); err != nil {
		return err
	}
	eng.Shutdown()
	return app.checkFaults(eng)
}

// readEvents 標準入力からイベントを読み込む
func (app *Application) readEvents(ctx context.Context, eng *engine.Engine) {
	if err := eng.ReadEvents(ctx, app.stdin); err != nil && !errors.Is(err, context.Canceled) {
		app.log.Warn("Event input stopped", "error", err)
	}
}

// checkFaults 実行時エラーで停止したセッションがあればエラーを返す
func (app *Application) checkFaults(eng *engine.Engine) error {
	faults := eng.Faults()
	if len(faults) == 0 {
		return nil
	}
	return fmt.Errorf("%d session(s) faulted: %w", len(faults), errors.Join(faults...))
}
