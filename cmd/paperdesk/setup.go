package main

import (
	"context"
	"fmt"

	"github.com/newthinker/paperdesk/internal/app"
	"github.com/newthinker/paperdesk/internal/collector"
	"github.com/newthinker/paperdesk/internal/collector/alpaca"
	"github.com/newthinker/paperdesk/internal/collector/binance"
	"github.com/newthinker/paperdesk/internal/collector/static"
	"github.com/newthinker/paperdesk/internal/collector/yahoo"
	"github.com/newthinker/paperdesk/internal/config"
	"github.com/newthinker/paperdesk/internal/logger"
	"github.com/newthinker/paperdesk/internal/notifier"
	"github.com/newthinker/paperdesk/internal/notifier/email"
	"github.com/newthinker/paperdesk/internal/notifier/telegram"
	"github.com/newthinker/paperdesk/internal/notifier/webhook"
	"github.com/newthinker/paperdesk/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// loadConfig reads --config when given, otherwise the defaults, and validates.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Debug("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newSourceRegistry registers every price source the config can select.
// Alpaca is only available when credentials are configured.
func newSourceRegistry(cfg *config.Config) *collector.Registry {
	reg := collector.NewRegistry()

	y := yahoo.New()
	if cfg.Source.Yahoo.BaseURL != "" {
		y = y.WithBaseURL(cfg.Source.Yahoo.BaseURL)
	}
	reg.Register(y)

	b := binance.New().WithQuote(cfg.Source.Binance.Quote)
	if cfg.Source.Binance.BaseURL != "" {
		b = b.WithBaseURL(cfg.Source.Binance.BaseURL)
	}
	reg.Register(b)
	reg.Register(static.New(staticPrices(cfg.Source.Static)))

	if cfg.Source.Alpaca.APIKey != "" && cfg.Source.Alpaca.APISecret != "" {
		reg.Register(alpaca.New(alpaca.Config{
			APIKey:    cfg.Source.Alpaca.APIKey,
			APISecret: cfg.Source.Alpaca.APISecret,
			BaseURL:   cfg.Source.Alpaca.BaseURL,
			Feed:      cfg.Source.Alpaca.Feed,
		}))
	}
	return reg
}

// staticPrices converts the configured price table. Viper lowercases map
// keys, static.New upper-cases them again.
func staticPrices(prices map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(prices))
	for ticker, p := range prices {
		out[ticker] = decimal.NewFromFloat(p)
	}
	return out
}

func openPersister(cfg *config.Config, log *zap.Logger) (*storage.Persister, error) {
	codec, err := storage.CodecFor(cfg.Storage.Codec)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Type:  cfg.Storage.Type,
		Path:  cfg.Storage.Path,
		Codec: cfg.Storage.Codec,
		S3: storage.S3Config{
			Bucket:    cfg.Storage.S3.Bucket,
			Endpoint:  cfg.Storage.S3.Endpoint,
			Region:    cfg.Storage.S3.Region,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Prefix:    cfg.Storage.S3.Prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Type, err)
	}
	log.Debug("storage opened",
		zap.String("type", store.Name()),
		zap.String("codec", codec.Name()),
	)
	return storage.NewPersister(store, codec, log), nil
}

var notifierFactories = map[string]func() notifier.Notifier{
	"telegram": func() notifier.Notifier { return telegram.New("", "") },
	"webhook":  func() notifier.Notifier { return webhook.New("", nil) },
	"email":    func() notifier.Notifier { return email.New("", 0, "", "", "", nil) },
}

// newNotifiers builds the enabled notifiers from config.
func newNotifiers(cfg *config.Config) ([]notifier.Notifier, error) {
	var out []notifier.Notifier
	for name, nc := range cfg.Notifiers {
		if !nc.Enabled {
			continue
		}
		factory, ok := notifierFactories[name]
		if !ok {
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
		n := factory()
		if err := n.Init(notifier.Config{Type: name, Params: nc.Params()}); err != nil {
			return nil, fmt.Errorf("initializing notifier %s: %w", name, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// openApp wires and loads the application for a one-shot command. The
// returned closer stops the app and releases storage.
func openApp(ctx context.Context) (*app.App, *config.Config, func(), error) {
	log, err := logger.NewCLI(debug)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return nil, nil, nil, err
	}

	source, err := newSourceRegistry(cfg).MustGet(cfg.Source.Provider)
	if err != nil {
		return nil, nil, nil, err
	}

	persister, err := openPersister(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := app.New(cfg, source, persister, log)
	if err != nil {
		persister.Close()
		return nil, nil, nil, err
	}
	if err := a.Load(ctx); err != nil {
		a.Close()
		return nil, nil, nil, fmt.Errorf("loading state: %w", err)
	}

	closer := func() {
		a.Stop()
		if err := a.Close(); err != nil {
			log.Warn("closing storage", zap.Error(err))
		}
		log.Sync()
	}
	return a, cfg, closer, nil
}
