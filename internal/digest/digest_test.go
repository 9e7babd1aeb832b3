package digest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"emotion-pulse/backend/internal/classifier"
	"emotion-pulse/backend/internal/models"
	"emotion-pulse/backend/internal/store"
	"emotion-pulse/backend/pkg/logger"
	"emotion-pulse/backend/shared/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type post struct {
	channelID string
	threadTS  string
	text      string
}

type fakeNotifier struct {
	posts []post
	fail  bool
}

func (f *fakeNotifier) PostMessage(_ context.Context, channelID, threadTS, text string) (string, error) {
	if f.fail {
		return "", errors.New("chat api down")
	}
	f.posts = append(f.posts, post{channelID: channelID, threadTS: threadTS, text: text})
	return fmt.Sprintf("1700000000.%06d", len(f.posts)), nil
}

type stubAdvice struct {
	advice classifier.DailyAdvice
	err    error
	series [][]models.EmotionScores
}

func (s *stubAdvice) DailyAdvice(_ context.Context, scores []models.EmotionScores) (classifier.DailyAdvice, error) {
	s.series = append(s.series, scores)
	return s.advice, s.err
}

func seedEvent(t *testing.T, st *store.MemoryEventStore, eventID, userID, date string, ts int64, scores models.EmotionScores) {
	t.Helper()
	e := &models.Event{EventID: eventID, UserID: userID, Timestamp: ts, Date: date, Month: date[:7]}
	e.SetScores(scores)
	created, err := st.Put(context.Background(), e)
	require.NoError(t, err)
	require.True(t, created)
}

func newJob(st *store.MemoryEventStore, notifier *fakeNotifier, advice classifier.AdviceProvider) *Job {
	logCfg := logger.DefaultConfig()
	logCfg.Level = "error"
	return New(Options{
		Store:     st,
		Advice:    advice,
		Notifier:  notifier,
		Metrics:   observability.NewMetrics(),
		Logger:    logger.New(logCfg),
		ChannelID: "C-digest",
		Location:  time.UTC,
	})
}

func TestDigestCoversExactlyTheTargetDay(t *testing.T) {
	st := store.NewMemoryEventStore()
	notifier := &fakeNotifier{}
	advice := &stubAdvice{advice: classifier.DailyAdvice{Advice: "Take a walk.", Song: "Here Comes the Sun"}}

	seedEvent(t, st, "Ev1", "U1", "2023-11-15", 1700000000, models.EmotionScores{Anger: 0.9})
	seedEvent(t, st, "Ev2", "U1", "2023-11-15", 1700000100, models.EmotionScores{Joy: 0.8})
	seedEvent(t, st, "Ev3", "U2", "2023-11-15", 1700000200, models.EmotionScores{Sad: 0.5})
	seedEvent(t, st, "Ev4", "U3", "2023-11-14", 1699910000, models.EmotionScores{Anger: 1})

	job := newJob(st, notifier, advice)
	require.NoError(t, job.RunForDate(context.Background(), "2023-11-15"))

	// Header plus one reply per user active on the day; U3 is out of range.
	require.Len(t, notifier.posts, 3)
	header := notifier.posts[0]
	assert.Equal(t, "C-digest", header.channelID)
	assert.Empty(t, header.threadTS)
	assert.Contains(t, header.text, "2023-11-15")

	assert.Contains(t, notifier.posts[1].text, "U1")
	assert.Contains(t, notifier.posts[1].text, "2 message(s)")
	assert.Contains(t, notifier.posts[2].text, "U2")

	for _, reply := range notifier.posts[1:] {
		assert.NotEmpty(t, reply.threadTS, "user summaries are threaded under the header")
		assert.Equal(t, reply.threadTS, notifier.posts[1].threadTS)
	}
}

func TestDigestIncludesAdviceAndSong(t *testing.T) {
	st := store.NewMemoryEventStore()
	notifier := &fakeNotifier{}
	advice := &stubAdvice{advice: classifier.DailyAdvice{Advice: "Take a walk.", Song: "Here Comes the Sun"}}

	seedEvent(t, st, "Ev1", "U1", "2023-11-15", 1700000000, models.EmotionScores{Joy: 0.8})

	job := newJob(st, notifier, advice)
	require.NoError(t, job.RunForDate(context.Background(), "2023-11-15"))

	require.Len(t, notifier.posts, 2)
	assert.Contains(t, notifier.posts[1].text, "Take a walk.")
	assert.Contains(t, notifier.posts[1].text, "Here Comes the Sun")
	require.Len(t, advice.series, 1)
	assert.Len(t, advice.series[0], 1, "advice sees the user's full score series")
}

func TestDigestDegradesWhenAdviceFails(t *testing.T) {
	st := store.NewMemoryEventStore()
	notifier := &fakeNotifier{}
	advice := &stubAdvice{err: errors.New("model unavailable")}

	seedEvent(t, st, "Ev1", "U1", "2023-11-15", 1700000000, models.EmotionScores{Joy: 0.8})

	job := newJob(st, notifier, advice)
	require.NoError(t, job.RunForDate(context.Background(), "2023-11-15"))

	require.Len(t, notifier.posts, 2)
	assert.NotContains(t, notifier.posts[1].text, ":bulb:")
	assert.NotContains(t, notifier.posts[1].text, ":notes:")
}

func TestDigestSkipsEmptyDay(t *testing.T) {
	st := store.NewMemoryEventStore()
	notifier := &fakeNotifier{}

	job := newJob(st, notifier, nil)
	require.NoError(t, job.RunForDate(context.Background(), "2023-11-15"))
	assert.Empty(t, notifier.posts, "nothing is posted for a day without records")
}

func TestDigestReportsHeaderFailure(t *testing.T) {
	st := store.NewMemoryEventStore()
	notifier := &fakeNotifier{fail: true}

	seedEvent(t, st, "Ev1", "U1", "2023-11-15", 1700000000, models.EmotionScores{Joy: 0.8})

	job := newJob(st, notifier, nil)
	assert.Error(t, job.RunForDate(context.Background(), "2023-11-15"))
}

func TestAggregateStatsAndHighlights(t *testing.T) {
	events := []models.Event{
		{EventID: "Ev1", UserID: "U1"},
		{EventID: "Ev2", UserID: "U1"},
	}
	events[0].SetScores(models.EmotionScores{Anger: 0.9, Contempt: 0.6, Disgust: 0.3, Fear: 0.45})
	events[1].SetScores(models.EmotionScores{Anger: 0.3, Joy: 0.2})

	summaries := Aggregate(events, func(s models.EmotionScores) float64 { return s.Anger })
	require.Len(t, summaries, 1)
	s := summaries[0]

	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 0.6, s.MeanIntensity, 1e-9)
	assert.InDelta(t, 0.9, s.MaxIntensity, 1e-9)

	// Highlights keep a stable emotion order and apply the 0.4 floor.
	require.Len(t, s.Highlights, 3)
	assert.Equal(t, "anger", s.Highlights[0].Emotion)
	assert.Equal(t, "fear", s.Highlights[1].Emotion)
	assert.Equal(t, "contempt", s.Highlights[2].Emotion)
	assert.InDelta(t, 0.9, s.Highlights[0].Max, 1e-9)
}

func TestAggregateOrdersUsers(t *testing.T) {
	events := []models.Event{
		{EventID: "Ev1", UserID: "U9"},
		{EventID: "Ev2", UserID: "U1"},
		{EventID: "Ev3", UserID: "U5"},
	}
	summaries := Aggregate(events, func(models.EmotionScores) float64 { return 0 })
	require.Len(t, summaries, 3)
	assert.Equal(t, "U1", summaries[0].UserID)
	assert.Equal(t, "U5", summaries[1].UserID)
	assert.Equal(t, "U9", summaries[2].UserID)
}
