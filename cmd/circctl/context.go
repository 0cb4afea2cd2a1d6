package main

import (
	"fmt"
	"log/slog"
	"sync"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/config"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/logging"

	"gorm.io/gorm"
)

// runtime is everything a command may need
type runtime struct {
	cfg      *config.Config
	db       *gorm.DB
	policy   *config.PolicyFile
	services *services.Services
	logger   *slog.Logger
	close    func() error
}

type opener func() (*runtime, error)

type commandContext struct {
	open opener

	once sync.Once
	rt   *runtime
	err  error
}

func newCommandContext(open opener) *commandContext {
	return &commandContext{open: open}
}

func (c *commandContext) runtime() (*runtime, error) {
	c.once.Do(func() {
		c.rt, c.err = c.open()
	})
	return c.rt, c.err
}

func (c *commandContext) shutdown() {
	if c.rt != nil && c.rt.close != nil {
		_ = c.rt.close()
	}
}

// openRuntime connects to the configured database the same way the server does
func openRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	policyFile, err := config.LoadPolicy(cfg.Circulation.PolicyFile)
	if err != nil {
		return nil, err
	}
	policy, err := policyFile.Domain(cfg.Circulation.LockTimeout)
	if err != nil {
		return nil, err
	}

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db); err != nil {
		_ = config.CloseDatabase()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	svc := services.New(services.Deps{
		Store:    repositories.NewStore(db),
		Notifier: services.MultiNotifier{
			services.NewLogNotifier(logger),
			services.NewWebhookNotifier(cfg.Circulation.NotifyWebhookURL, logger),
		},
		Policy: policy,
		Clock:  services.SystemClock,
		Logger: logger,
	})

	return &runtime{
		cfg:      cfg,
		db:       db,
		policy:   policyFile,
		services: svc,
		logger:   logger,
		close:    config.CloseDatabase,
	}, nil
}
