// Package classifier scores message text on the 7 emotion dimensions using
// a hosted language model.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"emotion-pulse/backend/internal/models"
)

// Classifier returns a fully populated emotion score vector for a message.
type Classifier interface {
	ClassifyText(ctx context.Context, text string) (models.EmotionScores, error)
}

// AdviceProvider produces the digest's daily advice from a day's score
// series. Kept separate from Classifier so the worker does not depend on it.
type AdviceProvider interface {
	DailyAdvice(ctx context.Context, scores []models.EmotionScores) (DailyAdvice, error)
}

// DailyAdvice is the digest supplement: one sentence of advice and a song
// recommendation.
type DailyAdvice struct {
	Advice string `json:"advice"`
	Song   string `json:"song"`
}

// parseScores extracts an emotion score vector from a model response. The
// model is asked for bare JSON but occasionally wraps it in a code fence.
func parseScores(response string) (models.EmotionScores, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var scores models.EmotionScores
	if err := json.Unmarshal([]byte(cleaned), &scores); err != nil {
		return models.EmotionScores{}, fmt.Errorf("parse emotion scores %q: %w", response, err)
	}
	return scores.Clamp(), nil
}

// parseAdvice extracts the daily advice payload from a model response.
func parseAdvice(response string) (DailyAdvice, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var advice DailyAdvice
	if err := json.Unmarshal([]byte(cleaned), &advice); err != nil {
		return DailyAdvice{}, fmt.Errorf("parse daily advice %q: %w", response, err)
	}
	return advice, nil
}
