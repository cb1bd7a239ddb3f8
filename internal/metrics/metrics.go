package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCounter exposes the number of live call sessions.
type SessionCounter interface {
	Len(ctx context.Context) (int, error)
}

// ArtifactCounter exposes the number of recording artifacts still waiting
// for their call logs, and the number dropped at absolute expiry.
type ArtifactCounter interface {
	Pending() int
	Expired() int64
}

// CallDirectionCounter returns call-log counts grouped by direction.
type CallDirectionCounter interface {
	CountByDirection(ctx context.Context) (map[string]int64, error)
}

// DropCounter returns the total number of voicemail drops recorded.
type DropCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Collector is a prometheus.Collector that gathers CallForge metrics at scrape time.
type Collector struct {
	sessions  SessionCounter
	artifacts ArtifactCounter
	callLogs  CallDirectionCounter
	drops     DropCounter
	startTime time.Time

	// Metric descriptors.
	liveSessionsDesc     *prometheus.Desc
	pendingArtifactsDesc *prometheus.Desc
	expiredArtifactsDesc *prometheus.Desc
	callsTotalDesc       *prometheus.Desc
	voicemailDropsDesc   *prometheus.Desc
	uptimeDesc           *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if unavailable.
func NewCollector(
	sessions SessionCounter,
	artifacts ArtifactCounter,
	callLogs CallDirectionCounter,
	drops DropCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		sessions:  sessions,
		artifacts: artifacts,
		callLogs:  callLogs,
		drops:     drops,
		startTime: startTime,

		liveSessionsDesc: prometheus.NewDesc(
			"callforge_live_sessions",
			"Number of call sessions currently held in the registry",
			nil, nil,
		),
		pendingArtifactsDesc: prometheus.NewDesc(
			"callforge_pending_recording_artifacts",
			"Recording artifacts waiting for their call log rows",
			nil, nil,
		),
		expiredArtifactsDesc: prometheus.NewDesc(
			"callforge_expired_recording_artifacts_total",
			"Recording artifacts dropped at absolute expiry without a call log",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"callforge_calls_total",
			"Total number of durable call logs",
			[]string{"direction"}, nil,
		),
		voicemailDropsDesc: prometheus.NewDesc(
			"callforge_voicemail_drops_total",
			"Total automated voicemail drops recorded",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callforge_uptime_seconds",
			"Seconds since the CallForge process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.liveSessionsDesc
	ch <- c.pendingArtifactsDesc
	ch <- c.expiredArtifactsDesc
	ch <- c.callsTotalDesc
	ch <- c.voicemailDropsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Live sessions gauge.
	if c.sessions != nil {
		count, err := c.sessions.Len(ctx)
		if err != nil {
			slog.Error("metrics: failed to count live sessions", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.liveSessionsDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	// Pending and expired artifact gauges.
	if c.artifacts != nil {
		ch <- prometheus.MustNewConstMetric(
			c.pendingArtifactsDesc, prometheus.GaugeValue,
			float64(c.artifacts.Pending()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.expiredArtifactsDesc, prometheus.CounterValue,
			float64(c.artifacts.Expired()),
		)
	}

	// Call volume counters by direction.
	if c.callLogs != nil {
		counts, err := c.callLogs.CountByDirection(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by direction", "error", err)
		} else {
			for _, dir := range []string{"inbound", "outbound"} {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(counts[dir]), dir,
				)
			}
		}
	}

	// Voicemail drop count.
	if c.drops != nil {
		count, err := c.drops.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count voicemail drops", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.voicemailDropsDesc, prometheus.CounterValue,
				float64(count),
			)
		}
	}

	// Uptime.
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
