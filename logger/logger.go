package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var def *slog.Logger

// Init builds the process logger from cfg and installs it as the slog
// default. It returns the config after defaults were applied so callers can
// reuse the resolved instance id.
func Init(cfg Config) Config {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "sketchrelay"
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}
	if cfg.Debug && cfg.Level == 0 {
		cfg.Level = slog.LevelDebug
	}

	out := outputFor(cfg)

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg, out)
	default:
		h = newStdHandler(cfg, out)
	}

	h = h.WithAttrs(commonAttr(cfg))

	def = slog.New(h)
	slog.SetDefault(def)
	return cfg
}

func L() *slog.Logger {
	if def == nil {
		Init(Config{})
	}
	return def
}

func outputFor(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.FilePath == "" {
		return out
	}

	file := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 10),
		MaxAge:     orDefault(cfg.MaxAgeDays, 7),
		Compress:   true,
	}
	return io.MultiWriter(out, file)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
