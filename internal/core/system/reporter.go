package system

import (
	"context"
	"runtime"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/core/ingest"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// Reporter feeds the engine's own resource usage back through the
// ingestion gateway as service-scoped observations, so the engine can
// watch itself with the same rules it applies to everything else.
type Reporter struct {
	gateway *ingest.Gateway
	cfg     config.SystemConfig
	log     *logrus.Logger
	stop    chan struct{}
	done    chan struct{}
}

// NewReporter creates a self-observation reporter.
func NewReporter(gateway *ingest.Gateway, cfg config.SystemConfig, log *logrus.Logger) *Reporter {
	return &Reporter{
		gateway: gateway,
		cfg:     cfg,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the reporting loop. A no-op when self-reporting is
// disabled in config.
func (r *Reporter) Start() {
	if !r.cfg.SelfReportEnabled {
		close(r.done)
		return
	}

	interval := r.cfg.SelfReportInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.log.WithField("interval", interval.String()).Info("Self-observation reporter started")
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.report()
			}
		}
	}()
}

// Stop halts the reporting loop and waits for it to drain.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reporter) report() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		r.submit(ctx, "cpu_percent", percents[0], "percent", now)
	} else if err != nil {
		r.log.WithError(err).Debug("Failed to read CPU usage")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		r.submit(ctx, "memory_percent", vm.UsedPercent, "percent", now)
	} else {
		r.log.WithError(err).Debug("Failed to read memory usage")
	}

	r.submit(ctx, "goroutines", float64(runtime.NumGoroutine()), "count", now)
}

func (r *Reporter) submit(ctx context.Context, metric string, value float64, unit string, ts time.Time) {
	obs := &models.MetricObservation{
		Subject:     r.cfg.ServiceName,
		SubjectKind: models.SubjectService,
		MetricName:  metric,
		Value:       value,
		Tenant:      r.cfg.Tenant,
		Timestamp:   ts,
	}
	obs.Unit.String = unit
	obs.Unit.Valid = unit != ""

	if err := r.gateway.SubmitObservation(ctx, obs); err != nil {
		r.log.WithError(err).WithField("metric", metric).Warn("Failed to record self-observation")
	}
}
