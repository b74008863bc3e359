package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoedge/marketscan/internal/domain/scan"
	"github.com/cryptoedge/marketscan/internal/metrics"
	"github.com/cryptoedge/marketscan/internal/preset"
	"github.com/cryptoedge/marketscan/internal/scan/pipeline"
)

// TickerSource supplies a full 24h ticker snapshot for the exchange.
type TickerSource interface {
	FetchAll(ctx context.Context) ([]scan.RawTicker, error)
}

const defaultUsageTimeout = 5 * time.Second

// Orchestrator is the top-level scan entry point. It reads no ambient
// state: every call receives its configuration as an argument and works
// on its own locally-fetched snapshot.
type Orchestrator struct {
	tickers      TickerSource
	registry     *preset.Registry
	pipeline     *pipeline.Pipeline
	usageTimeout time.Duration
}

// NewOrchestrator wires the scan entry point.
func NewOrchestrator(tickers TickerSource, registry *preset.Registry, pipe *pipeline.Pipeline) *Orchestrator {
	return &Orchestrator{
		tickers:      tickers,
		registry:     registry,
		pipeline:     pipe,
		usageTimeout: defaultUsageTimeout,
	}
}

// ExecuteScan runs one ad-hoc scan. It has no persistence side effects.
func (o *Orchestrator) ExecuteScan(ctx context.Context, cfg scan.Config, callerID string) (*scan.Summary, error) {
	return o.run(ctx, cfg, scan.CustomPresetID)
}

// ExecutePreset resolves a preset, runs the scan, and then bumps the
// preset's usage counter best-effort: a counter failure is logged and
// never surfaces as a scan failure.
func (o *Orchestrator) ExecutePreset(ctx context.Context, presetID, callerID string) (*scan.Summary, error) {
	p, err := o.registry.GetByID(ctx, presetID, callerID)
	if err != nil {
		return nil, err
	}

	summary, err := o.run(ctx, p.Config, p.ID)
	if err != nil {
		return nil, err
	}

	go o.recordUsage(p.ID, callerID)
	return summary, nil
}

func (o *Orchestrator) run(ctx context.Context, cfg scan.Config, presetID string) (*scan.Summary, error) {
	start := time.Now()

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		metrics.ScansTotal.WithLabelValues(presetID, metrics.OutcomeValidation).Inc()
		return nil, err
	}

	raw, err := o.tickers.FetchAll(ctx)
	if err != nil {
		return nil, o.failScan(presetID, err)
	}

	candidates := scan.BuildCandidates(raw, cfg.AllowedQuoteCurrencies...)
	survivors, err := o.pipeline.Run(ctx, candidates, cfg)
	if err != nil {
		return nil, o.failScan(presetID, err)
	}

	results := make([]scan.RankedResult, 0, len(survivors))
	for _, c := range survivors {
		results = append(results, scan.RankedResult{
			Symbol:            c.Symbol,
			Price:             c.Price,
			PriceChangePct24h: c.PriceChangePct24h,
			QuoteVolume24h:    c.QuoteVolume24h,
			MarketCapUSD:      c.MarketCapUSD,
			RSI:               c.RSI,
		})
	}

	duration := time.Since(start)
	summary := &scan.Summary{
		PresetID:     presetID,
		TotalResults: len(results),
		Duration:     duration,
		Results:      results,
	}

	log.Info().
		Str("preset", presetID).
		Int("results", len(results)).
		Int("snapshot_size", len(raw)).
		Dur("duration", duration).
		Msg("scan completed")

	metrics.ScansTotal.WithLabelValues(presetID, metrics.OutcomeOK).Inc()
	metrics.ScanDuration.Observe(duration.Seconds())
	metrics.ScanResults.Observe(float64(len(results)))

	return summary, nil
}

// failScan classifies a scan failure for metrics and ensures upstream
// failures carry the typed wrapper.
func (o *Orchestrator) failScan(presetID string, err error) error {
	outcome := metrics.OutcomeUpstream
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		outcome = metrics.OutcomeCancelled
	}
	metrics.ScansTotal.WithLabelValues(presetID, outcome).Inc()

	if outcome == metrics.OutcomeUpstream && !scan.IsUpstream(err) {
		return &scan.UpstreamError{Source: "ticker snapshot", Err: err, Retryable: true}
	}
	return err
}

// recordUsage runs detached from the scan call with its own deadline.
func (o *Orchestrator) recordUsage(presetID, callerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.usageTimeout)
	defer cancel()

	if err := o.registry.IncrementUsage(ctx, presetID, callerID); err != nil {
		log.Warn().Err(err).Str("preset", presetID).Msg("failed to record preset usage")
	}
}
