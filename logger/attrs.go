package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"
)

func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}

	hn, _ := os.Hostname()
	id, err := uuid.NewV4()
	if err != nil {
		return hn
	}
	return hn + "-" + id.String()[:8]
}

func commonAttr(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}
