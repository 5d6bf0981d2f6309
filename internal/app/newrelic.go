package app

import (
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"

	"ridehail/internal/config"
)

// NewNewRelicApp starts the New Relic agent. It returns nil when the agent
// is disabled.
func NewNewRelicApp(cfg config.NewRelicConfig) (*newrelic.Application, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("start new relic: %w", err)
	}
	return nrApp, nil
}
