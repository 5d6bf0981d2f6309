package app

import (
	"context"

	"ridehail/internal/config"
	"ridehail/internal/pricing"
)

// NewSurgeProvider picks the surge model for PRICING_SURGE_MODE. The demand model
// falls back to the time-of-day bands when its signal is unavailable.
func NewSurgeProvider(cfg config.PricingConfig, signal pricing.DemandSignal) pricing.SurgeProvider {
	switch cfg.SurgeMode {
	case config.SurgeOff:
		return pricing.SurgeFunc(func(context.Context, pricing.SurgeContext) float64 { return 1 })
	case config.SurgeDemand:
		return pricing.NewDemandSurge(signal, pricing.DefaultDemandConfig(), pricing.NewTimeOfDaySurge(nil))
	default:
		return pricing.NewTimeOfDaySurge(nil)
	}
}
