// Package worker consumes queued events, scores them, raises threshold
// alerts and persists the records.
package worker

import (
	"context"
	"time"

	"emotion-pulse/backend/internal/classifier"
	"emotion-pulse/backend/internal/models"
	"emotion-pulse/backend/internal/queue"
	"emotion-pulse/backend/internal/store"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/pkg/resilience"
	"emotion-pulse/backend/shared/chat"
	"emotion-pulse/backend/shared/observability"
)

// IntensityFunc reduces a score vector to the negative-intensity scalar
// used for alerting. It is injected so deployments can replace the
// aggregation without touching the worker.
type IntensityFunc func(models.EmotionScores) float64

// DefaultIntensity averages the three negative-affect scores.
func DefaultIntensity(s models.EmotionScores) float64 {
	return (s.Anger + s.Contempt + s.Disgust) / 3
}

// Options wires a Worker.
type Options struct {
	Queue      queue.Queue
	Store      store.EventStore
	Classifier classifier.Classifier
	Notifier   chat.Notifier
	Breaker    *resilience.CircuitBreaker
	Metrics    *observability.Metrics
	Logger     *logger.Logger

	Intensity        IntensityFunc
	WarningThreshold float64
	AlertChannelID   string
	WriteRetries     int
	PollInterval     time.Duration
	Location         *time.Location
}

// Worker runs the scoring loop. Many instances may run concurrently; the
// queue's per-group locking keeps any one conversation on a single
// instance at a time.
type Worker struct {
	opts Options
}

// New validates options and creates a worker.
func New(opts Options) *Worker {
	if opts.Intensity == nil {
		opts.Intensity = DefaultIntensity
	}
	if opts.WriteRetries <= 0 {
		opts.WriteRetries = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Worker{opts: opts}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d, err := w.opts.Queue.Receive(ctx)
		if err != nil {
			w.opts.Logger.LogError(err, "queue receive failed")
			w.sleep(ctx)
			continue
		}
		if d == nil {
			w.sleep(ctx)
			continue
		}

		w.Process(ctx, d)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.opts.PollInterval):
	}
}

// Process handles one delivery end to end: idempotency check, classify,
// alert, persist, ack.
func (w *Worker) Process(ctx context.Context, d *queue.Delivery) {
	msg := d.Message
	log := w.opts.Logger.WithEvent(msg.EventID, msg.Group())

	if d.Attempt > 1 {
		w.opts.Metrics.QueueRedeliveries.Inc()
	}

	// A record already present means a previous delivery completed the
	// write (possibly crashing before the ack). Skip quietly: no second
	// record, no duplicate alert.
	exists, err := w.opts.Store.Exists(ctx, msg.EventID)
	if err != nil {
		log.LogError(err, "idempotency lookup failed")
		w.nack(ctx, d, log)
		return
	}
	if exists {
		log.Info("event already stored, acking redelivery")
		w.ack(ctx, d, log)
		return
	}

	scores, err := w.classify(ctx, msg.Text)
	if err != nil {
		w.opts.Metrics.ClassifyFailures.Inc()
		log.LogError(err, "classification failed", "attempt", d.Attempt)
		w.nack(ctx, d, log)
		return
	}

	intensity := w.opts.Intensity(scores)
	if intensity >= w.opts.WarningThreshold {
		w.alert(ctx, msg, intensity, log)
	}

	event := &models.Event{
		EventID:     msg.EventID,
		UserID:      msg.UserID,
		ChannelID:   msg.ChannelID,
		ChannelType: msg.ChannelType,
		Text:        msg.Text,
		Timestamp:   msg.Timestamp,
	}
	event.Date, event.Month = models.DateMonth(msg.Timestamp, w.opts.Location)
	event.SetScores(scores)

	if err := w.write(ctx, event); err != nil {
		log.LogError(err, "store write failed after local retries")
		w.nack(ctx, d, log)
		return
	}

	w.opts.Metrics.EventsScored.Inc()
	log.Info("event scored", "intensity", intensity, "date", event.Date)
	w.ack(ctx, d, log)
}

func (w *Worker) classify(ctx context.Context, text string) (models.EmotionScores, error) {
	var scores models.EmotionScores
	call := func() error {
		var cerr error
		scores, cerr = w.opts.Classifier.ClassifyText(ctx, text)
		return cerr
	}
	if w.opts.Breaker != nil {
		if err := w.opts.Breaker.Execute(call); err != nil {
			return models.EmotionScores{}, err
		}
		return scores, nil
	}
	if err := call(); err != nil {
		return models.EmotionScores{}, err
	}
	return scores, nil
}

// alert is best-effort: a failed send is reported but never blocks the
// record write.
func (w *Worker) alert(ctx context.Context, msg models.QueueMessage, intensity float64, log *logger.Logger) {
	text := chat.WarningText(msg.UserID, msg.ChannelID, msg.Text, intensity)
	if _, err := w.opts.Notifier.PostMessage(ctx, w.opts.AlertChannelID, "", text); err != nil {
		w.opts.Metrics.AlertSendErrors.Inc()
		log.LogError(err, "alert send failed", "intensity", intensity)
		return
	}
	w.opts.Metrics.AlertsSent.Inc()
	log.Info("alert sent", "intensity", intensity)
}

func (w *Worker) write(ctx context.Context, event *models.Event) error {
	var err error
	for i := 0; i < w.opts.WriteRetries; i++ {
		if _, err = w.opts.Store.Put(ctx, event); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return err
}

func (w *Worker) ack(ctx context.Context, d *queue.Delivery, log *logger.Logger) {
	if err := w.opts.Queue.Ack(ctx, d); err != nil {
		log.LogError(err, "ack failed")
	}
}

func (w *Worker) nack(ctx context.Context, d *queue.Delivery, log *logger.Logger) {
	if err := w.opts.Queue.Nack(ctx, d); err != nil {
		log.LogError(err, "nack failed")
	}
}
