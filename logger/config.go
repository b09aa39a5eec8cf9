package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Backend string

const (
	BackendStd Backend = "std" // slog text handler
	BackendZap Backend = "zap" // zap JSON core behind slog
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level     slog.Level
	Env       Env
	Backend   Backend // default: std for dev, zap otherwise
	Debug     bool
	AddSource bool

	// Zap sampling per second
	SampleInitial    int
	SampleThereafter int

	// Rotated file output in addition to Output when FilePath is set
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Output defaults to stdout
	Output io.Writer
}

func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod":
		return EnvStage
	default:
		return EnvDev
	}
}

func DetectEnv() Env {
	return ParseEnv(os.Getenv("APP_ENV"))
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
