package logger

import (
	"io"
	"log/slog"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newStdHandler(cfg Config, out io.Writer) slog.Handler {
	return slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	})
}

func newZapHandler(cfg Config, out io.Writer) slog.Handler {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.AddSource {
		encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(out), toZapLevel(cfg.Level))

	// Sample bursts, e.g. a flood of dropped-send warnings
	core = zapcore.NewSamplerWithOptions(core, time.Second,
		orDefault(cfg.SampleInitial, 100),
		orDefault(cfg.SampleThereafter, 10),
	)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return slogzap.Option{Level: cfg.Level, Logger: z}.NewZapHandler()
}

func toZapLevel(lvl slog.Level) zapcore.Level {
	switch {
	case lvl <= slog.LevelDebug:
		return zapcore.DebugLevel
	case lvl <= slog.LevelInfo:
		return zapcore.InfoLevel
	case lvl <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
