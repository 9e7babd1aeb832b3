// Package digest builds and posts the daily per-user emotion summary.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"emotion-pulse/backend/internal/classifier"
	"emotion-pulse/backend/internal/models"
	"emotion-pulse/backend/internal/store"
	"emotion-pulse/backend/internal/worker"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/chat"
	"emotion-pulse/backend/shared/observability"
)

const jobName = "digest"

// highlightThreshold is the per-emotion maximum above which an emotion is
// called out in a user's summary.
const highlightThreshold = 0.4

// Highlight is one notable emotion in a user's day.
type Highlight struct {
	Emotion string
	Max     float64
}

// UserSummary aggregates one user's records for the digest day.
type UserSummary struct {
	UserID        string
	Count         int
	MeanIntensity float64
	MaxIntensity  float64
	Highlights    []Highlight
	Scores        []models.EmotionScores
}

// Options wires a digest Job.
type Options struct {
	Store    store.EventStore
	Advice   classifier.AdviceProvider
	Notifier chat.Notifier
	Metrics  *observability.Metrics
	Logger   *logger.Logger

	ChannelID string
	Intensity worker.IntensityFunc
	Location  *time.Location
}

// Job posts the previous business day's summary as one header message with
// a per-user thread reply each. The scheduler invokes it once per weekday;
// the job itself performs a single run and returns.
type Job struct {
	opts Options
}

// New validates options and creates the job.
func New(opts Options) *Job {
	if opts.Intensity == nil {
		opts.Intensity = worker.DefaultIntensity
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Job{opts: opts}
}

// Run executes one digest for the previous business day.
func (j *Job) Run(ctx context.Context) error {
	date := models.PreviousWeekday(time.Now(), j.opts.Location)
	return j.RunForDate(ctx, date)
}

// RunForDate executes one digest for an explicit day bucket.
func (j *Job) RunForDate(ctx context.Context, date string) error {
	j.opts.Metrics.JobRuns.WithLabelValues(jobName).Inc()
	log := j.opts.Logger.WithJob(jobName, date)

	events, err := j.opts.Store.GetByDate(ctx, date)
	if err != nil {
		j.opts.Metrics.JobFailures.WithLabelValues(jobName).Inc()
		return fmt.Errorf("load events for %s: %w", date, err)
	}
	if len(events) == 0 {
		log.Info("no activity, skipping digest")
		return nil
	}

	summaries := Aggregate(events, j.opts.Intensity)
	log.Info("digest prepared", "date", date, "users", len(summaries), "events", len(events))

	threadTS, err := j.opts.Notifier.PostMessage(ctx, j.opts.ChannelID, "", chat.DigestHeaderText(date))
	if err != nil {
		j.opts.Metrics.JobFailures.WithLabelValues(jobName).Inc()
		return fmt.Errorf("post digest header: %w", err)
	}

	var failed int
	for _, s := range summaries {
		advice := j.adviceFor(ctx, s, log)
		text := summaryText(s, advice)
		if _, err := j.opts.Notifier.PostMessage(ctx, j.opts.ChannelID, threadTS, text); err != nil {
			failed++
			log.LogError(err, "post user summary failed", "user_id", s.UserID)
		}
	}
	if failed > 0 {
		j.opts.Metrics.JobFailures.WithLabelValues(jobName).Inc()
		return fmt.Errorf("digest for %s: %d of %d user summaries failed", date, failed, len(summaries))
	}
	return nil
}

// adviceFor asks the model for the user's advice and song. The digest is
// still delivered when the call fails; the summary just omits the section.
func (j *Job) adviceFor(ctx context.Context, s UserSummary, log *logger.Logger) classifier.DailyAdvice {
	if j.opts.Advice == nil {
		return classifier.DailyAdvice{}
	}
	advice, err := j.opts.Advice.DailyAdvice(ctx, s.Scores)
	if err != nil {
		log.LogError(err, "daily advice unavailable", "user_id", s.UserID)
		return classifier.DailyAdvice{}
	}
	return advice
}

// Aggregate folds one day's records into per-user summaries, ordered by
// user id for deterministic posting.
func Aggregate(events []models.Event, intensity worker.IntensityFunc) []UserSummary {
	type acc struct {
		count  int
		sum    float64
		max    float64
		maxima map[string]float64
		scores []models.EmotionScores
	}
	byUser := make(map[string]*acc)

	for _, e := range events {
		a := byUser[e.UserID]
		if a == nil {
			a = &acc{maxima: make(map[string]float64)}
			byUser[e.UserID] = a
		}
		scores := e.Scores()
		v := intensity(scores)
		a.count++
		a.sum += v
		if v > a.max {
			a.max = v
		}
		for emotion, score := range namedScores(scores) {
			if score > a.maxima[emotion] {
				a.maxima[emotion] = score
			}
		}
		a.scores = append(a.scores, scores)
	}

	summaries := make([]UserSummary, 0, len(byUser))
	for userID, a := range byUser {
		summaries = append(summaries, UserSummary{
			UserID:        userID,
			Count:         a.count,
			MeanIntensity: a.sum / float64(a.count),
			MaxIntensity:  a.max,
			Highlights:    highlights(a.maxima),
			Scores:        a.scores,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].UserID < summaries[j].UserID })
	return summaries
}

var emotionOrder = []string{"joy", "sad", "anger", "fear", "disgust", "contempt", "surprise"}

func namedScores(s models.EmotionScores) map[string]float64 {
	return map[string]float64{
		"joy":      s.Joy,
		"sad":      s.Sad,
		"anger":    s.Anger,
		"fear":     s.Fear,
		"disgust":  s.Disgust,
		"contempt": s.Contempt,
		"surprise": s.Surprise,
	}
}

func highlights(maxima map[string]float64) []Highlight {
	var out []Highlight
	for _, emotion := range emotionOrder {
		if v := maxima[emotion]; v >= highlightThreshold {
			out = append(out, Highlight{Emotion: emotion, Max: v})
		}
	}
	return out
}

func summaryText(s UserSummary, advice classifier.DailyAdvice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<@%s>: %d message(s)\n", s.UserID, s.Count)
	fmt.Fprintf(&b, "Negative intensity: mean %.2f, peak %.2f\n", s.MeanIntensity, s.MaxIntensity)
	for _, h := range s.Highlights {
		fmt.Fprintf(&b, "• %s peaked at %.2f\n", h.Emotion, h.Max)
	}
	if advice.Advice != "" {
		fmt.Fprintf(&b, ":bulb: %s\n", advice.Advice)
	}
	if advice.Song != "" {
		fmt.Fprintf(&b, ":notes: Today's song: %s\n", advice.Song)
	}
	return strings.TrimRight(b.String(), "\n")
}
