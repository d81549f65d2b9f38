// Package app assembles the conversation stack from configuration. Both the
// Lambda entrypoint and the console use it.
package app

import (
	"fmt"
	"log/slog"

	"adherence-agent/internal/config"
	"adherence-agent/internal/dialog"
	"adherence-agent/internal/identity"
	"adherence-agent/internal/integrations/careapi"
	"adherence-agent/internal/normalize"
	"adherence-agent/internal/persistence"
	"adherence-agent/internal/recap"
)

// NewCareClient builds the care service client. A configured static key
// wins over the parameter store.
func NewCareClient(cfg *config.Config, keys careapi.Getter) (*careapi.Client, error) {
	opts := []careapi.Option{careapi.WithAPIKey(cfg.CareAPIKey)}
	if cfg.CareAPIKey == "" && keys != nil && cfg.ParamPrefix != "" {
		opts = append(opts, careapi.WithKeyParameter(keys, cfg.CareAPIKeyParameter()))
	}
	return careapi.NewClient(cfg.CareAPIBaseURL, opts...)
}

// NewPersister builds the adapter that writes session summaries to the care
// service.
func NewPersister(cfg *config.Config, care *careapi.Client, logger *slog.Logger) (*persistence.Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	persister, err := persistence.NewAdapter(care, cfg.CallTimeout, cfg.PersistRetryDelay, persistence.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: persistence adapter: %w", err)
	}
	return persister, nil
}

// NewMachine wires the normalizer, identity resolver, formatter and
// persistence adapter around the care client.
func NewMachine(cfg *config.Config, care *careapi.Client, logger *slog.Logger) (*dialog.Machine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	vocab, err := normalize.LoadVocabulary(cfg.VocabularyFile)
	if err != nil {
		return nil, fmt.Errorf("app: load vocabulary: %w", err)
	}
	education := make(map[string]string, len(vocab.Education))
	for topic, text := range vocab.Education {
		education[string(topic)] = text
	}

	resolver, err := identity.NewResolver(care, cfg.CallTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("app: identity resolver: %w", err)
	}
	persister, err := NewPersister(cfg, care, logger)
	if err != nil {
		return nil, err
	}

	return dialog.NewMachine(resolver, care, persister, normalize.New(vocab), recap.NewFormatter(education),
		dialog.Limits{
			MaxRetries:   cfg.MaxRetries,
			MaxFallbacks: cfg.MaxFallbacks,
			CallTimeout:  cfg.CallTimeout,
		},
		dialog.WithLogger(logger),
	)
}
