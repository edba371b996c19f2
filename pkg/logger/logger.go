package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var globalLogger *slog.Logger

// Option はロガーの初期化オプション
type Option func(*options)

type options struct {
	output io.Writer
	json   bool
}

// WithOutput ログの出力先を指定する（デフォルト: 標準エラー出力）
// 標準出力はスクリプトの @Print が使うため、ログは標準エラー出力に出す
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithJSON JSON形式で出力する
func WithJSON(enabled bool) Option {
	return func(o *options) {
		o.json = enabled
	}
}

// ParseLevel ログレベル文字列をslog.Levelに変換
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}

// InitLogger ログレベルに応じてslogを初期化
func InitLogger(level string, opts ...Option) error {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return err
	}

	o := options{output: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	var handler slog.Handler
	if o.json {
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.output, handlerOpts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	return nil
}

// GetLogger グローバルロガーを取得
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		// デフォルトロガーを返す
		return slog.Default()
	}
	return globalLogger
}
