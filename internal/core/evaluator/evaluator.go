package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/core/alerts"
	"github.com/featureops/fsmon-backend-go/internal/core/rules"
	"github.com/featureops/fsmon-backend-go/internal/core/telemetry"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// trigger is one evaluation request from the ingest path.
type trigger struct {
	subject    string
	metricName string
}

// Evaluator runs active alert rules against the metric store. It reacts
// to new observations through Notify and sweeps all rules on a poll
// interval so rules over quiet metrics still fire.
type Evaluator struct {
	metrics repositories.MetricRepository
	rules   repositories.RuleRepository
	alerts  *alerts.Service
	cfg     config.MonitoringConfig
	log     *logrus.Logger

	events chan trigger
	cron   *cron.Cron
	stop   chan struct{}
	wg     sync.WaitGroup

	// ruleLocks serializes breach handling per rule so the dedup check
	// and alert creation cannot interleave across workers.
	mu        sync.Mutex
	ruleLocks map[string]*sync.Mutex
}

// New creates an evaluator. Start must be called before it does anything.
func New(metricRepo repositories.MetricRepository, ruleRepo repositories.RuleRepository, alertSvc *alerts.Service, cfg config.MonitoringConfig, log *logrus.Logger) *Evaluator {
	queueSize := cfg.EventQueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Evaluator{
		metrics:   metricRepo,
		rules:     ruleRepo,
		alerts:    alertSvc,
		cfg:       cfg,
		log:       log,
		events:    make(chan trigger, queueSize),
		stop:      make(chan struct{}),
		ruleLocks: make(map[string]*sync.Mutex),
	}
}

// Notify queues an evaluation for the subject and metric that just
// received an observation. Never blocks the ingest path; when the queue
// is full the poll sweep picks the rule up instead.
func (e *Evaluator) Notify(subject, metricName string) {
	select {
	case e.events <- trigger{subject: subject, metricName: metricName}:
		telemetry.EvaluationQueueDepth.Set(float64(len(e.events)))
	default:
		e.log.WithFields(logrus.Fields{
			"subject": subject,
			"metric":  metricName,
		}).Warn("Evaluation queue full, deferring to poll sweep")
	}
}

// Start launches the worker pool and the poll sweep.
func (e *Evaluator) Start() error {
	workers := e.cfg.EvaluatorWorkers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	cronLog := cron.PrintfLogger(e.log)
	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLog),
		cron.Recover(cronLog),
	))
	if _, err := e.cron.AddFunc(fmt.Sprintf("@every %s", interval), e.pollSweep); err != nil {
		return fmt.Errorf("failed to schedule poll sweep: %w", err)
	}
	e.cron.Start()

	e.log.WithFields(logrus.Fields{
		"workers":       workers,
		"poll_interval": interval.String(),
	}).Info("Rule evaluator started")
	return nil
}

// Stop halts the poll sweep and drains the workers.
func (e *Evaluator) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
	close(e.stop)
	e.wg.Wait()
	e.log.Info("Rule evaluator stopped")
}

func (e *Evaluator) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case t := <-e.events:
			telemetry.EvaluationQueueDepth.Set(float64(len(e.events)))
			e.evaluateTrigger(context.Background(), t)
		}
	}
}

// evaluateTrigger runs every active rule whose condition watches the
// triggering metric and matches the triggering subject.
func (e *Evaluator) evaluateTrigger(ctx context.Context, t trigger) {
	active, err := e.rules.ListActive(ctx)
	if err != nil {
		e.log.WithError(err).Error("Failed to list active rules for trigger")
		return
	}

	for _, rule := range active {
		cond, err := rule.ParsedCondition()
		if err != nil {
			e.ruleFailed(rule, err)
			continue
		}
		if cond.MetricName != t.metricName || !rules.MatchSelector(cond.SubjectSelector, t.subject) {
			continue
		}
		e.evaluateRule(ctx, rule, cond, t.subject)
	}
}

// pollSweep evaluates every active rule against all subjects with data
// in the rule's window. A broken rule is logged and skipped; it never
// stalls the sweep.
func (e *Evaluator) pollSweep() {
	ctx := context.Background()

	active, err := e.rules.ListActive(ctx)
	if err != nil {
		e.log.WithError(err).Error("Failed to list active rules for poll sweep")
		return
	}

	for _, rule := range active {
		cond, err := rule.ParsedCondition()
		if err != nil {
			e.ruleFailed(rule, err)
			continue
		}
		e.evaluateRule(ctx, rule, cond, "")
	}
}

// evaluateRule queries the rule's window and decides breach. An empty
// subject evaluates every matching subject; otherwise only the one that
// triggered. A window with no observations is healthy by definition.
func (e *Evaluator) evaluateRule(ctx context.Context, rule *models.AlertRule, cond *models.RuleCondition, subject string) {
	timer := time.Now()
	defer func() {
		telemetry.EvaluationDuration.Observe(time.Since(timer).Seconds())
	}()

	window := rules.WindowDuration(cond)
	if window <= 0 {
		e.ruleFailed(rule, fmt.Errorf("rule %s has invalid window %q", rule.ID, cond.Window))
		return
	}

	now := time.Now().UTC()
	filter := repositories.MetricFilter{
		MetricName: cond.MetricName,
		Subject:    subject,
		Tenant:     rule.Tenant,
		Start:      now.Add(-window),
		End:        now,
	}
	observations, err := e.metrics.Query(ctx, filter)
	if err != nil {
		e.ruleFailed(rule, err)
		return
	}

	bySubject := make(map[string][]float64)
	for _, obs := range observations {
		if !rules.MatchSelector(cond.SubjectSelector, obs.Subject) {
			continue
		}
		bySubject[obs.Subject] = append(bySubject[obs.Subject], obs.Value)
	}
	if len(bySubject) == 0 {
		telemetry.RuleEvaluations.WithLabelValues("no_data").Inc()
		return
	}

	for subj, values := range bySubject {
		outcome := rules.Evaluate(cond, values, e.cfg.MinBreachSamples)
		if !outcome.Breach {
			telemetry.RuleEvaluations.WithLabelValues("healthy").Inc()
			continue
		}
		telemetry.RuleEvaluations.WithLabelValues("breach").Inc()
		e.handleBreach(ctx, rule, cond, subj, outcome)
	}
}

// handleBreach raises or reopens the rule's alert. Serialized per rule:
// a rule has at most one open alert no matter how many subjects breach
// or how many workers arrive at once.
func (e *Evaluator) handleBreach(ctx context.Context, rule *models.AlertRule, cond *models.RuleCondition, subject string, outcome rules.Outcome) {
	lock := e.lockFor(rule.ID)
	lock.Lock()
	defer lock.Unlock()

	open, err := e.alerts.OpenAlertForRule(ctx, rule.ID)
	if err != nil {
		e.ruleFailed(rule, err)
		return
	}

	if open != nil {
		if open.Status == models.StatusAcknowledged {
			if _, err := e.alerts.Reopen(ctx, open); err != nil {
				e.ruleFailed(rule, err)
			}
		}
		return
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"subject":       subject,
		"metric_name":   cond.MetricName,
		"reduced_value": outcome.Reduced,
		"threshold":     cond.Threshold,
		"comparator":    cond.Comparator,
		"aggregation":   cond.Aggregation,
		"window":        cond.Window,
		"samples":       outcome.Samples,
	})
	description := fmt.Sprintf("%s(%s) on %s is %.4f, breaching %s %.4f over %s",
		cond.Aggregation, cond.MetricName, subject, outcome.Reduced,
		cond.Comparator, cond.Threshold, cond.Window)

	if _, err := e.alerts.CreateFromRule(ctx, rule, rule.Name, description, metadata); err != nil {
		e.ruleFailed(rule, err)
	}
}

func (e *Evaluator) lockFor(ruleID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.ruleLocks[ruleID]
	if !ok {
		lock = &sync.Mutex{}
		e.ruleLocks[ruleID] = lock
	}
	return lock
}

func (e *Evaluator) ruleFailed(rule *models.AlertRule, err error) {
	telemetry.RuleEvaluations.WithLabelValues("error").Inc()
	e.log.WithError(err).WithFields(logrus.Fields{
		"rule_id": rule.ID,
		"rule":    rule.Name,
	}).Error("Rule evaluation failed")
}
