package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/jobfire/types/config"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type sleepConfig struct {
	Duration string `json:"duration"`
	Fail     bool   `json:"fail"`
}

// builtinHandlers are the job types this binary can run on its own. Real
// deployments register their marketplace handlers through the library.
func builtinHandlers(l *zap.SugaredLogger) []config.MethodHandler {
	return []config.MethodHandler{
		{
			JobType: "noop",
			Func: func(ctx context.Context, raw json.RawMessage) error {
				return nil
			},
		},
		{
			JobType: "log",
			Func: func(ctx context.Context, raw json.RawMessage) error {
				l.Infow("log job fired", "config", string(raw))
				return nil
			},
		},
		{
			JobType: "sleep",
			Func:    sleepHandler,
		},
	}
}

// sleepHandler waits for the configured duration and honors cancellation.
func sleepHandler(ctx context.Context, raw json.RawMessage) error {
	var cfg sleepConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return errors.Wrap(err, "decode sleep config")
		}
	}
	d := time.Second
	if cfg.Duration != "" {
		parsed, err := time.ParseDuration(cfg.Duration)
		if err != nil {
			return errors.Wrapf(err, "parse duration %q", cfg.Duration)
		}
		d = parsed
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if cfg.Fail {
		return errors.New("sleep job configured to fail")
	}
	return nil
}
