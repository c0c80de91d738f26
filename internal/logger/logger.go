package logger

import (
	"io"
	"log/slog"
	"os"
)

func New(app, env string) *slog.Logger {
	return NewWithWriter(os.Stdout, app, env)
}

func NewWithWriter(w io.Writer, app, env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(h).With(
		slog.String("app", app),
		slog.String("env", env),
	)
}
