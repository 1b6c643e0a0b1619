package backend

import (
	"context"
	"strings"
	"time"

	appErr "campusjudge/pkg/errors"
	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultProbeTimeout = 3 * time.Second

// Config lists the candidate backends in preference order.
type Config struct {
	Remote           RemoteConfig  `yaml:"remote"`
	Local            LocalConfig   `yaml:"local"`
	AllowPassthrough bool          `yaml:"allowPassthrough"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout"`
}

// Select returns the first configured backend whose probe succeeds:
// remote, then local, then passthrough when explicitly allowed.
func Select(ctx context.Context, cfg Config) (Backend, error) {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	var tried []string
	if strings.TrimSpace(cfg.Remote.BaseURL) != "" {
		remote, err := NewRemoteBackend(cfg.Remote)
		if err == nil {
			err = probe(ctx, remote, timeout)
		}
		if err == nil {
			logger.Info(ctx, "judge backend selected", zap.String("kind", string(KindRemote)), zap.String("url", cfg.Remote.BaseURL))
			return remote, nil
		}
		logger.Warn(ctx, "remote judge unavailable", zap.String("url", cfg.Remote.BaseURL), zap.Error(err))
		tried = append(tried, "remote: "+err.Error())
	}

	if strings.TrimSpace(cfg.Local.BaseURL) != "" {
		local, err := NewLocalBackend(cfg.Local)
		if err == nil {
			err = probe(ctx, local, timeout)
		}
		if err == nil {
			logger.Info(ctx, "judge backend selected", zap.String("kind", string(KindLocal)), zap.String("url", cfg.Local.BaseURL))
			return local, nil
		}
		logger.Warn(ctx, "local execution service unavailable", zap.String("url", cfg.Local.BaseURL), zap.Error(err))
		tried = append(tried, "local: "+err.Error())
	}

	if cfg.AllowPassthrough {
		pass, err := newPassthrough()
		if err == nil {
			logger.Warn(ctx, "judge backend selected: PASSTHROUGH, verdicts are not real", zap.String("kind", string(KindPassthrough)))
			return pass, nil
		}
		tried = append(tried, "passthrough: "+err.Error())
	}

	return nil, appErr.New(appErr.NoJudgeBackend).WithDetail("tried", tried)
}

func probe(ctx context.Context, b Backend, timeout time.Duration) error {
	p, ok := b.(Prober)
	if !ok {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Probe(probeCtx)
}
