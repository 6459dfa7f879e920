package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/DreamCats/mailtriage/internal/config"
	"github.com/DreamCats/mailtriage/internal/dedupe"
	"github.com/DreamCats/mailtriage/internal/embedding"
	"github.com/DreamCats/mailtriage/internal/logging"
	"github.com/DreamCats/mailtriage/internal/store"
	"github.com/DreamCats/mailtriage/internal/textsearch"
)

// app holds everything a command needs. Components are built once per run
// and closed together.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	logRun   *logging.Run
	embedder *embedding.Service
	index    *store.Index
	text     *textsearch.Index
	detector *dedupe.Detector
}

// loadConfig reads --config if given, then MAILTRIAGE_CONFIG. An explicit
// path that does not exist is an error. Only a missing file at the home
// default falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	cfg, err := config.Load()
	if config.IsNotFound(err) && os.Getenv("MAILTRIAGE_CONFIG") == "" {
		return config.Default(), nil
	}
	return cfg, err
}

// openApp builds the store, embedder and detector. When keepLog is set the
// run also gets its own log file.
func openApp(cmd *cobra.Command, opts *rootOptions, keepLog bool) (*app, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if keepLog {
		run, err := logging.Setup(cfg.Log, cmd.Name(), cmd.ErrOrStderr())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize log file: %w", err)
		}
		a.logRun = run
		a.logger = run.Logger
	} else {
		a.logger, err = logging.New(cmd.ErrOrStderr(), cfg.Log.Level)
		if err != nil {
			return nil, err
		}
	}

	metric, err := store.ParseMetric(cfg.Store.Metric)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.index, err = store.OpenIndex(cfg.Store.Dir, cfg.Store.Collection, metric)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	if cfg.Store.TextIndex {
		a.text, err = textsearch.Open(cfg.Store.Dir, cfg.Store.Collection)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open text index: %w", err)
		}
	}

	a.embedder, err = embedding.NewService(&cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.detector = dedupe.NewDetector(a.embedder, a.index,
		dedupe.WithThreshold(cfg.Dedupe.Threshold),
		dedupe.WithLimit(cfg.Dedupe.Limit),
		dedupe.WithMaxTextChars(cfg.Dedupe.MaxTextChars),
		dedupe.WithLogger(a.logger),
	)

	a.logger.Debug("opened index",
		"dir", cfg.Store.Dir,
		"collection", cfg.Store.Collection,
		"metric", metric,
		"provider", cfg.Embedding.Provider,
		"model", cfg.Embedding.Model,
	)
	return a, nil
}

// Close releases every component that was opened.
func (a *app) Close() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.text != nil {
		errs = append(errs, a.text.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.logRun != nil {
		errs = append(errs, a.logRun.Close())
	}
	return errors.Join(errs...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
