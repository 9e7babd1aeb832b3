package models

import (
	"time"
)

// EmotionScores holds the 7-dimensional score vector produced by the
// classifier. Every score is normalized to [0, 1] and the vector is always
// populated as a whole; a partially scored record never reaches the store.
type EmotionScores struct {
	Joy      float64 `json:"joy"`
	Sad      float64 `json:"sad"`
	Anger    float64 `json:"anger"`
	Fear     float64 `json:"fear"`
	Disgust  float64 `json:"disgust"`
	Contempt float64 `json:"contempt"`
	Surprise float64 `json:"surprise"`
}

// Clamp bounds every score to [0, 1].
func (s EmotionScores) Clamp() EmotionScores {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return EmotionScores{
		Joy:      clamp(s.Joy),
		Sad:      clamp(s.Sad),
		Anger:    clamp(s.Anger),
		Fear:     clamp(s.Fear),
		Disgust:  clamp(s.Disgust),
		Contempt: clamp(s.Contempt),
		Surprise: clamp(s.Surprise),
	}
}

// Event is one scored chat message, keyed by the platform's event id.
// EventID doubles as the idempotency key: a given id is written at most once.
type Event struct {
	EventID     string `json:"event_id" gorm:"primaryKey"`
	UserID      string `json:"user_id" gorm:"index:idx_events_user_time,priority:1"`
	ChannelID   string `json:"channel_id"`
	ChannelType string `json:"channel_type"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp" gorm:"index:idx_events_user_time,priority:2;index:idx_events_date_time,priority:2"`
	Date        string `json:"date" gorm:"index:idx_events_date_time,priority:1"`
	Month       string `json:"month"`

	Joy      float64 `json:"joy"`
	Sad      float64 `json:"sad"`
	Anger    float64 `json:"anger"`
	Fear     float64 `json:"fear"`
	Disgust  float64 `json:"disgust"`
	Contempt float64 `json:"contempt"`
	Surprise float64 `json:"surprise"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (Event) TableName() string { return "emotion_events" }

// Scores returns the record's score vector.
func (e *Event) Scores() EmotionScores {
	return EmotionScores{
		Joy:      e.Joy,
		Sad:      e.Sad,
		Anger:    e.Anger,
		Fear:     e.Fear,
		Disgust:  e.Disgust,
		Contempt: e.Contempt,
		Surprise: e.Surprise,
	}
}

// SetScores copies a score vector into the record, clamping to [0, 1].
func (e *Event) SetScores(s EmotionScores) {
	s = s.Clamp()
	e.Joy = s.Joy
	e.Sad = s.Sad
	e.Anger = s.Anger
	e.Fear = s.Fear
	e.Disgust = s.Disgust
	e.Contempt = s.Contempt
	e.Surprise = s.Surprise
}

// DateMonth derives the day bucket ("2006-01-02") and export partition
// ("2006-01") for an epoch timestamp in the given display timezone. Both are
// pure functions of the timestamp; they can never disagree with it.
func DateMonth(timestamp int64, loc *time.Location) (date string, month string) {
	t := time.Unix(timestamp, 0).In(loc)
	return t.Format("2006-01-02"), t.Format("2006-01")
}

// PreviousWeekday returns the previous business day for "now" in the given
// timezone: Friday when invoked on a Monday, otherwise the calendar day
// before. Used by the daily digest window.
func PreviousWeekday(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	days := 1
	if local.Weekday() == time.Monday {
		days = 3
	}
	return local.AddDate(0, 0, -days).Format("2006-01-02")
}
