package main

import (
	"context"

	"feedmap/internal/metrics"
	"feedmap/internal/metrics/datadog"
	"feedmap/internal/metrics/prompush"
)

// setupMetrics installs the configured backend. Failures fall back to the nop
// backend with a warning so a metrics outage never blocks a transform.
func (a *app) setupMetrics(ctx context.Context) {
	m := a.cfg.Metrics
	log := a.log

	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			log.Warn().Err(err).Msg("metrics: failed to init prom push backend; using nop")
			return
		}
		log.Debug().Str("url", m.PushgatewayURL).Str("job", m.Job).Msg("metrics: pushgateway enabled")
		metrics.SetBackend(b)
		a.onClose(func() {
			if err := metrics.Flush(); err != nil {
				log.Warn().Err(err).Msg("metrics: flush error")
			}
			metrics.SetBackend(nil)
		})

	case "datadog":
		// The backend flushes periodically and once more on Close, so long
		// directory runs show up as a series rather than a single spike.
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    m.Job,
			Tags:       m.Tags,
			FlushEvery: m.FlushEvery(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("metrics: failed to init datadog backend; using nop")
			return
		}
		log.Debug().Str("job", m.Job).Strs("tags", m.Tags).Msg("metrics: datadog enabled")
		metrics.SetBackend(b)
		a.onClose(func() {
			if err := b.Close(); err != nil {
				log.Warn().Err(err).Msg("metrics: datadog close/flush error")
			}
			metrics.SetBackend(nil)
		})

	case "", "none":
		log.Debug().Msg("metrics: disabled")

	default:
		log.Warn().Str("backend", m.Backend).Msg("metrics: unknown backend; metrics disabled")
	}
}
