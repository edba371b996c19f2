package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 環境変数名
const (
	EnvHeadless = "HEADLESS"
	EnvTimeout  = "TIMEOUT"
	EnvLogLevel = "LOG_LEVEL"
	EnvEncoding = "STCR_ENCODING"
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	ScriptPath  string        // スクリプトファイルまたはディレクトリのパス
	Segment     string        // 起動時に呼び出すセグメント（空なら先頭から実行）
	ConfigPath  string        // stcr.toml のパス（空なら自動検索）
	Encoding    string        // スクリプトの文字コード
	Timeout     time.Duration // タイムアウト時間（0は無制限）
	Tick        time.Duration // ヘッドレスモードのティック間隔（0はデフォルト）
	LogLevel    string        // ログレベル（debug, info, warn, error）
	Headless    bool          // ヘッドレスモード
	Compile     bool          // コンパイルのみ行い .stcrc を出力する
	Output      string        // コンパイル結果の出力先
	StdinEvents bool          // 標準入力からイベントを読み込む
	ShowHelp    bool          // ヘルプ表示フラグ

	set map[string]bool
}

// IsSet はフラグまたは環境変数で値が明示的に指定されたかを返す。
// 名前はロング形式（"timeout" など）で指定する。
func (c *Config) IsSet(name string) bool {
	return c.set[name]
}

// 短縮形からロング形式への対応
var aliases = map[string]string{
	"s": "segment",
	"t": "timeout",
	"l": "log-level",
	"c": "config",
	"e": "encoding",
	"o": "output",
	"h": "help",
}

// 値を取らないフラグ
var boolFlags = map[string]bool{
	"help":         true,
	"headless":     true,
	"compile":      true,
	"stdin-events": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("stcr", flag.ContinueOnError)
	fs.Usage = func() {}

	config := &Config{
		LogLevel: "info",
		set:      make(map[string]bool),
	}

	timeout := durationValue{d: &config.Timeout}
	tick := durationValue{d: &config.Tick}

	fs.StringVar(&config.Segment, "segment", "", "起動セグメント")
	fs.StringVar(&config.Segment, "s", "", "起動セグメント（短縮形）")
	fs.Var(&timeout, "timeout", "タイムアウト時間（秒または 1m30s 形式）")
	fs.Var(&timeout, "t", "タイムアウト時間（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.ConfigPath, "config", "", "設定ファイルのパス")
	fs.StringVar(&config.ConfigPath, "c", "", "設定ファイルのパス（短縮形）")
	fs.StringVar(&config.Encoding, "encoding", "", "スクリプトの文字コード")
	fs.StringVar(&config.Encoding, "e", "", "スクリプトの文字コード（短縮形）")
	fs.Var(&tick, "tick", "ティック間隔")
	fs.StringVar(&config.Output, "output", "", "コンパイル結果の出力先")
	fs.StringVar(&config.Output, "o", "", "コンパイル結果の出力先（短縮形）")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.BoolVar(&config.Compile, "compile", false, "コンパイルのみ行う")
	fs.BoolVar(&config.StdinEvents, "stdin-events", false, "標準入力からイベントを読み込む")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 明示的に指定されたフラグを記録する
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := aliases[name]; ok {
			name = long
		}
		config.set[name] = true
	})

	// 環境変数からの設定（コマンドラインフラグが優先）
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// タイムアウトの検証
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %s", config.Timeout)
	}
	if config.Tick < 0 {
		return nil, fmt.Errorf("tick must be non-negative, got %s", config.Tick)
	}

	// ログレベルの検証
	config.LogLevel = strings.ToLower(config.LogLevel)
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	if config.Output != "" && !config.Compile {
		return nil, fmt.Errorf("--output requires --compile")
	}

	// 位置引数（スクリプトのパス）
	switch fs.NArg() {
	case 0:
	case 1:
		config.ScriptPath = fs.Arg(0)
	default:
		return nil, fmt.Errorf("too many arguments: %s", strings.Join(fs.Args(), " "))
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	if !c.set["headless"] {
		if v := os.Getenv(EnvHeadless); v != "" {
			c.Headless = v == "1" || strings.ToLower(v) == "true"
			c.set["headless"] = true
		}
	}

	if !c.set["timeout"] {
		if v := os.Getenv(EnvTimeout); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
			}
			c.Timeout = d
			c.set["timeout"] = true
		}
	}

	if !c.set["log-level"] {
		if v := os.Getenv(EnvLogLevel); v != "" {
			c.LogLevel = strings.ToLower(v)
			c.set["log-level"] = true
		}
	}

	if !c.set["encoding"] {
		if v := os.Getenv(EnvEncoding); v != "" {
			c.Encoding = v
			c.set["encoding"] = true
		}
	}
	return nil
}

// parseDuration は秒数（整数・小数）または time.ParseDuration 形式を受け付ける
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// durationValue は flag.Value として秒数または期間文字列を受け取る
type durationValue struct {
	d *time.Duration
}

func (v *durationValue) String() string {
	if v.d == nil {
		return "0s"
	}
	return v.d.String()
}

func (v *durationValue) Set(s string) error {
	d, err := parseDuration(s)
	if err != nil {
		return err
	}
	*v.d = d
	return nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)

			// -t 5 のように値が次の引数にある場合
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}
			if long, ok := aliases[name]; ok {
				name = long
			}
			if !boolFlags[name] && i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
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
	fmt.Fprintf(os.Stdout, `stcr - STCR Script Interpreter

Usage:
  stcr [options] [script-path]

Arguments:
  script-path   .stcr / .stcrc ファイル、またはスクリプトを含むディレクトリ（省略可）
                ファイルを指定した場合、そのスクリプトでセッションを1つ起動
                ディレクトリを指定した場合、全スクリプトを読み込み設定ファイルのセッションを起動

Options:
  -s, --segment <name>        起動時に呼び出すセグメント（デフォルト: 先頭から実行）
  -t, --timeout <duration>    指定時間後にプログラムを終了（例: 10, 1m30s）（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  -c, --config <path>         設定ファイル（デフォルト: stcr.toml を上位ディレクトリまで検索）
  -e, --encoding <name>       スクリプトの文字コード（例: utf-8, shift_jis）
  --tick <duration>           ヘッドレスモードのティック間隔（デフォルト: 1/60秒）
  --headless                  ヘッドレスモード（GUIなし）
  --stdin-events              標準入力から "イベント名 [セッションID]" 形式でイベントを受け付ける
  --compile                   スクリプトをコンパイルして .stcrc を出力
  -o, --output <path>         コンパイル結果の出力先（--compile と併用）
  -h, --help                  このヘルプを表示

Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<duration>          タイムアウト時間
  LOG_LEVEL=<level>           ログレベル
  STCR_ENCODING=<name>        スクリプトの文字コード

Examples:
  stcr hello.stcr                     先頭から実行
  stcr -s start game.stcr             セグメント start から実行
  stcr --headless --timeout 10 dir/   ディレクトリを10秒間ヘッドレス実行
  stcr --compile -o game.stcrc game.stcr  コンパイル済みファイルを出力
  echo '&jump' | stcr --headless --stdin-events game.stcr
`)
}
