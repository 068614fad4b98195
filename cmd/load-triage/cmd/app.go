// Copyright 2024 Load Triage
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"load-triage/internal/browser"
	"load-triage/internal/cache"
	"load-triage/internal/config"
	"load-triage/internal/database"
	"load-triage/internal/miner"
	"load-triage/internal/parser"
	"load-triage/internal/reply"
	"load-triage/internal/triage"
)

// app holds the components shared by the commands that triage mail
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *database.DB
	cache     *cache.Manager
	pool      *browser.Pool
	extractor *parser.ReferenceExtractor
	miner     *miner.Miner
	service   *triage.Service
}

type appOptions struct {
	// noLookup leaves the browser pool unstarted even when the portal is enabled
	noLookup bool
}

// newApp opens the database and builds the triage pipeline from cfg
func newApp(cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Database initialized", "path", cfg.DBPath)

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		cache:  cache.NewManager(db.LookupCache, cfg.DisableCache, cfg.CacheTTL, logger),
		extractor: parser.NewReferenceExtractor(&parser.ExtractorConfig{
			Policy: cfg.ReferencePolicy,
			Logger: logger,
		}),
		miner: miner.New(&miner.Config{
			MinPageChars: cfg.PortalMinPageChars,
			Logger:       logger,
		}),
	}

	formatter, err := reply.NewFormatter(&reply.Config{
		Signature: cfg.ReplySignature,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	var lookup triage.LoadLookup
	if cfg.PortalEnabled && !opts.noLookup {
		if !cfg.HasPortalCredentials() && cfg.ChromeUserDataDir == "" {
			logger.Warn("QuoteFactory lookup enabled without credentials or a browser profile; lookups will fail at login")
		}
		a.pool = browser.NewPool(&browser.Options{
			Headless:        cfg.BrowserHeadless,
			UserDataDir:     cfg.ChromeUserDataDir,
			ChromePath:      cfg.ChromePath,
			MaxBrowsers:     cfg.BrowserPoolSize,
			IdleTimeout:     cfg.BrowserIdleTimeout,
			MaxIdleBrowsers: 1,
			Logger:          logger,
		})
		lookup = browser.NewPortal(a.pool, &browser.PortalConfig{
			URL:      cfg.PortalURL,
			Username: cfg.PortalUsername,
			Password: cfg.PortalPassword,
			Timeout:  cfg.PortalTimeout,
			Logger:   logger,
		})
	}

	a.service, err = triage.NewService(&triage.Config{
		Extractor: a.extractor,
		Miner:     a.miner,
		Formatter: formatter,
		Lookup:    lookup,
		Cache:     a.cache,
		History:   db.Inquiries,
		RateLimit: cfg,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create triage service: %w", err)
	}

	logger.Info("Triage pipeline ready",
		"lookup_enabled", a.service.LookupEnabled(),
		"reference_policy", cfg.ReferencePolicy.String(),
		"cache_enabled", a.cache.IsEnabled())
	return a, nil
}

// Close releases the browser pool, the cache and the database
func (a *app) Close() error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
