package cli

import (
	"fmt"

	go_applepay "github.com/stremovskyy/go-applepay"
	"github.com/stremovskyy/go-applepay/internal/config"
	"github.com/stremovskyy/go-applepay/log"
)

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var envFiles []string
	if o.envFile != "" {
		envFiles = append(envFiles, o.envFile)
	}
	cfg, err := config.Load(o.configFile, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	return cfg, nil
}

// newLogger builds the zap logger described by cfg.
func newLogger(cfg config.LogConfig) (*log.ZapLogger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "json" {
		return log.NewZapProduction(level)
	}
	return log.NewZapDevelopment(level)
}

func newClient(cfg *config.Config, logger log.Logger) (go_applepay.ApplePay, error) {
	opts := []go_applepay.Option{
		go_applepay.WithMerchantOptions(cfg.ApplePay.Options),
		go_applepay.WithTimeout(cfg.ApplePay.Timeout),
		go_applepay.WithLogger(logger),
		go_applepay.WithLogHTTPBodies(cfg.ApplePay.LogHTTPBodies),
	}
	if cfg.ApplePay.StoreName != "" {
		opts = append(opts, go_applepay.WithDisplayName(cfg.ApplePay.StoreName))
	}
	return go_applepay.NewClient(opts...)
}
