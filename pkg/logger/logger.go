package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mattn/go-colorable"
)

var globalLogger *slog.Logger

// ParseLevel ログレベル文字列を slog.Level に変換
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
// 出力先は Windows でも ANSI シーケンスが通る colorable な標準出力
func InitLogger(level string) error {
	return InitLoggerWriter(level, colorable.NewColorableStdout())
}

// InitLoggerWriter 出力先を指定してslogを初期化
// TUI モニタはログをステータスビューに流すためにこちらを使う
func InitLoggerWriter(level string, w io.Writer) error {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return err
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slogLevel,
	})

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
