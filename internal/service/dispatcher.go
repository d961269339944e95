package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/config"
	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
	"github.com/dmehra2102/prod-golang-projects/lifeline/pkg/metrics"
)

// Sender is the external notification collaborator (SMS/email/push).
// Outcomes are recorded on the emergency record, never surfaced to the
// operation that triggered the send.
type Sender interface {
	Send(ctx context.Context, channel emergency.NotificationChannel, recipient, payload string) error
}

type NotificationJob struct {
	EmergencyID string
	Channel     emergency.NotificationChannel
	Recipient   string
	Payload     string

	// attempt counts prior failures; set by the retry path.
	attempt int
}

// Dispatcher delivers external notifications asynchronously with bounded
// retries. It never blocks a public operation: jobs are queued on a
// buffered channel and dropped with a warning when the queue is full.
type Dispatcher struct {
	sender  Sender
	repo    emergency.Repository
	cfg     config.NotifyConfig
	log     *zap.Logger
	metrics *metrics.Collector

	jobs chan NotificationJob
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(sender Sender, repo emergency.Repository, cfg config.NotifyConfig, log *zap.Logger, m *metrics.Collector) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		repo:    repo,
		cfg:     cfg,
		log:     log,
		metrics: m,
		jobs:    make(chan NotificationJob, cfg.QueueSize),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue queues a notification for asynchronous delivery. Best effort:
// a full queue drops the job with a warning.
func (d *Dispatcher) Enqueue(job NotificationJob) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	select {
	case d.jobs <- job:
	default:
		d.log.Warn("notification queue full, dropping job",
			zap.String("emergency_id", job.EmergencyID),
			zap.String("recipient", job.Recipient),
		)
	}
}

func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.jobs)
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.process(job)
	}
}

func (d *Dispatcher) process(job NotificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	e, err := d.repo.GetByID(ctx, job.EmergencyID)
	if err != nil {
		d.log.Error("notification job: load failed",
			zap.String("emergency_id", job.EmergencyID), zap.Error(err))
		return
	}

	// Suppress further sends once the emergency is terminal; in-flight
	// attempts have already left this check behind and finish normally.
	if e.IsTerminal() {
		d.log.Debug("suppressing notification for terminal emergency",
			zap.String("emergency_id", job.EmergencyID))
		return
	}

	sendErr := d.sender.Send(ctx, job.Channel, job.Recipient, job.Payload)

	status := emergency.DeliverySent
	outcome := "sent"
	if sendErr != nil {
		status = emergency.DeliveryFailed
		outcome = "failed"
	}
	if d.metrics != nil {
		d.metrics.NotificationAttemptsTotal.WithLabelValues(string(job.Channel), outcome).Inc()
	}

	if err := d.recordOutcome(ctx, job, status); err != nil {
		d.log.Error("notification job: recording outcome failed",
			zap.String("emergency_id", job.EmergencyID), zap.Error(err))
	}

	if sendErr == nil {
		return
	}

	if job.attempt >= d.cfg.MaxRetries {
		if d.metrics != nil {
			d.metrics.NotificationExhaustedTotal.Inc()
		}
		d.log.Warn("notification retries exhausted",
			zap.String("emergency_id", job.EmergencyID),
			zap.String("channel", string(job.Channel)),
			zap.String("recipient", job.Recipient),
			zap.Int("attempts", job.attempt+1),
			zap.Error(sendErr),
		)
		return
	}

	retry := job
	retry.attempt++
	if d.metrics != nil {
		d.metrics.NotificationRetriesTotal.Inc()
	}

	backoff := d.cfg.BaseBackoff << uint(job.attempt)
	time.AfterFunc(backoff, func() {
		d.Enqueue(retry)
	})
}

// recordOutcome updates the matching notification attempt (and contact
// entry, for SMS to a registered contact) on the record, retrying on
// version conflicts.
func (d *Dispatcher) recordOutcome(ctx context.Context, job NotificationJob, status emergency.DeliveryStatus) error {
	for attempt := 0; ; attempt++ {
		e, err := d.repo.GetByID(ctx, job.EmergencyID)
		if err != nil {
			return err
		}

		now := time.Now()
		found := false
		for i := range e.Notifications {
			n := &e.Notifications[i]
			if n.Channel == job.Channel && n.Recipient == job.Recipient {
				n.Status = status
				n.Timestamp = now
				n.RetryCount = job.attempt
				found = true
				break
			}
		}
		if !found {
			e.Notifications = append(e.Notifications, emergency.NotificationAttempt{
				Channel:    job.Channel,
				Recipient:  job.Recipient,
				Status:     status,
				Timestamp:  now,
				RetryCount: job.attempt,
			})
		}

		for i := range e.ContactsNotified {
			c := &e.ContactsNotified[i]
			if c.Phone == job.Recipient {
				c.Status = status
				c.NotifiedAt = &now
			}
		}

		err = d.repo.Save(ctx, e)
		if err == nil {
			return nil
		}
		if !errors.Is(err, emergency.ErrVersionConflict) || attempt >= maxSaveRetries {
			return err
		}
	}
}
