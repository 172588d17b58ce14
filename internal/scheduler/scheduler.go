package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"highlight_courier/internal/config"
	"highlight_courier/internal/domain"
	"highlight_courier/internal/metrics"
	"highlight_courier/internal/selection"
)

// Selector is the selection engine as the scheduler sees it.
type Selector interface {
	Select(ctx context.Context, count int, mode selection.Mode, c selection.Constraints) ([]domain.Highlight, error)
	CommitSelection(ctx context.Context, ids []string) error
}

// Notifier hands a deliverable to the external renderer/transmitter.
type Notifier interface {
	Deliver(ctx context.Context, d *domain.Deliverable) (*domain.DeliveryResult, error)
}

type CycleRecorder interface {
	Append(ctx context.Context, rec *domain.CycleRecord) error
}

type DeliveryRecorder interface {
	Append(ctx context.Context, rec *domain.DeliveryRecord) error
}

// DeliveryScheduler fires selection/delivery cycles at the configured time of
// day. A failed cycle never unschedules anything: the next trigger retries.
type DeliveryScheduler struct {
	selector   Selector
	notifier   Notifier
	cycles     CycleRecorder
	deliveries DeliveryRecorder
	logger     *slog.Logger

	mu       sync.Mutex
	cfg      config.DeliveryConfig
	trigger  TriggerConfig
	reloadCh chan struct{}

	// inFlight guards against overlapping cycles: a trigger firing while a
	// cycle is still running is coalesced, not run in parallel.
	inFlight sync.Mutex

	now func() time.Time
}

func NewDeliveryScheduler(
	selector Selector,
	notifier Notifier,
	cycles CycleRecorder,
	deliveries DeliveryRecorder,
	logger *slog.Logger,
	cfg config.DeliveryConfig,
) *DeliveryScheduler {
	return &DeliveryScheduler{
		selector:   selector,
		notifier:   notifier,
		cycles:     cycles,
		deliveries: deliveries,
		logger:     logger,
		cfg:        cfg,
		trigger: TriggerConfig{
			Recurrence: Recurrence(cfg.Recurrence),
			TimeOfDay:  cfg.TimeOfDay,
			Weekday:    cfg.Weekday,
		},
		reloadCh: make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Reconfigure replaces the schedule. The pending trigger is discarded before
// the new one is installed, so repeated reconfiguration never stacks
// duplicate triggers.
func (s *DeliveryScheduler) Reconfigure(cfg config.DeliveryConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.trigger = TriggerConfig{
		Recurrence: Recurrence(cfg.Recurrence),
		TimeOfDay:  cfg.TimeOfDay,
		Weekday:    cfg.Weekday,
	}
	s.mu.Unlock()

	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

// Run blocks until the context is cancelled, firing a delivery cycle at each
// trigger time.
func (s *DeliveryScheduler) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		trigger := s.trigger
		s.mu.Unlock()

		next, ok, err := trigger.NextTrigger(s.now())
		if err != nil {
			s.logger.Error("invalid schedule, waiting for reconfiguration", "error", err)
			ok = false
		}

		var timerCh <-chan time.Time
		var timer *time.Timer
		if ok {
			s.logger.Info("next delivery trigger", "at", next)
			timer = time.NewTimer(time.Until(next))
			timerCh = timer.C
		} else {
			s.logger.Info("delivery schedule is manual, waiting")
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("delivery scheduler stopped")
			return ctx.Err()
		case <-s.reloadCh:
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("delivery schedule reconfigured")
		case <-timerCh:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one selection/delivery cycle. A firing that overlaps an
// in-flight cycle is skipped and logged.
func (s *DeliveryScheduler) RunCycle(ctx context.Context) {
	if !s.inFlight.TryLock() {
		s.logger.Warn("delivery cycle already in flight, coalescing trigger")
		metrics.CoalescedTriggers.Inc()
		return
	}
	defer s.inFlight.Unlock()

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	mode, err := selection.ParseMode(cfg.SelectionMode)
	if err != nil {
		s.failCycle(ctx, 0, err)
		return
	}

	constraints := selection.Constraints{
		Sources: cfg.SourceFilter,
		MinAge:  cfg.MinAge,
	}
	for _, c := range cfg.CategoryFilter {
		constraints.Categories = append(constraints.Categories, domain.ParseCategory(c))
	}

	picked, err := s.selector.Select(ctx, cfg.HighlightsPerCycle, mode, constraints)
	if err != nil {
		s.failCycle(ctx, 0, err)
		return
	}
	if len(picked) == 0 {
		s.logger.Info("no highlights eligible, skipping delivery")
		s.recordCycle(ctx, 0, domain.CycleSuccess, "")
		return
	}

	deliverable := &domain.Deliverable{
		Highlights: picked,
		Recipient:  cfg.Recipient,
		RenderHints: map[string]string{
			"mode": string(mode),
		},
	}

	result, err := s.deliver(ctx, deliverable, cfg)

	ids := make([]string, len(picked))
	for i := range picked {
		ids[i] = picked[i].ID
	}

	status := domain.DeliveryFailed
	if err == nil && result.Status == domain.DeliverySent {
		status = domain.DeliverySent
	}
	s.recordDelivery(ctx, cfg.Recipient, ids, status)

	if status != domain.DeliverySent {
		detail := "notifier rejected delivery"
		if err != nil {
			detail = err.Error()
		} else if result.Detail != "" {
			detail = result.Detail
		}
		s.failCycle(ctx, len(picked), domain.NewScheduling("deliver: %s", detail))
		return
	}

	// Show history only advances once the notifier confirmed the hand-off.
	if err := s.selector.CommitSelection(ctx, ids); err != nil {
		s.logger.Error("commit selection failed", "error", err)
		s.recordCycle(ctx, len(picked), domain.CyclePartial, err.Error())
		return
	}

	s.recordCycle(ctx, len(picked), domain.CycleSuccess, "")
	metrics.DeliveryCycles.WithLabelValues(string(domain.CycleSuccess)).Inc()
	s.logger.Info("delivery cycle completed", "delivered", len(picked), "recipient", cfg.Recipient)
}

// deliver hands off with a bounded timeout and a fixed number of retries,
// backing off exponentially up to the configured cap.
func (s *DeliveryScheduler) deliver(ctx context.Context, d *domain.Deliverable, cfg config.DeliveryConfig) (*domain.DeliveryResult, error) {
	var result *domain.DeliveryResult
	var err error

	backoff := cfg.Retry.InitialBackoff
	for attempt := 1; attempt <= cfg.Retry.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout)
		result, err = s.notifier.Deliver(attemptCtx, d)
		cancel()

		if err == nil {
			return result, nil
		}
		if attempt == cfg.Retry.MaxAttempts {
			break
		}

		s.logger.Warn("delivery attempt failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > cfg.Retry.MaxBackoff {
			backoff = cfg.Retry.MaxBackoff
		}
	}
	return result, err
}

func (s *DeliveryScheduler) failCycle(ctx context.Context, total int, err error) {
	s.logger.Error("delivery cycle failed", "error", err)
	s.recordCycle(ctx, total, domain.CycleFailed, err.Error())
	metrics.DeliveryCycles.WithLabelValues(string(domain.CycleFailed)).Inc()
}

func (s *DeliveryScheduler) recordCycle(ctx context.Context, total int, status domain.CycleStatus, msg string) {
	rec := &domain.CycleRecord{
		ID:           uuid.NewString(),
		Timestamp:    s.now(),
		ItemsTotal:   total,
		Status:       status,
		ErrorMessage: msg,
	}
	if err := s.cycles.Append(ctx, rec); err != nil {
		s.logger.Error("failed to append cycle record", "error", err)
	}
}

func (s *DeliveryScheduler) recordDelivery(ctx context.Context, recipient string, ids []string, status domain.DeliveryStatus) {
	rec := &domain.DeliveryRecord{
		ID:           uuid.NewString(),
		Timestamp:    s.now(),
		Recipient:    recipient,
		HighlightIDs: ids,
		Status:       status,
	}
	if err := s.deliveries.Append(ctx, rec); err != nil {
		s.logger.Error("failed to append delivery record", "error", err)
	}
}
