package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"emotion-pulse/backend/internal/models"
	"emotion-pulse/backend/pkg/logger"

	"github.com/sashabaranov/go-openai"
)

const scoringSystemPrompt = `You are an AI Empath, an expert at reading emotions within text messages and chats.
The text given is a message sent to a company chat channel; it is surrounded by <text></text>.
Score each of the 7 emotions in the range 0.0 to 1.0 and return ONLY a JSON object with this exact structure:
{"joy": 0.0, "sad": 0.0, "anger": 0.0, "fear": 0.0, "disgust": 0.0, "contempt": 0.0, "surprise": 0.0}`

const adviceSystemPrompt = `You are a mental health professional.
You give advice to employees based on the emotion scores evaluated for the messages they sent during the day.
Each line inside <scores></scores> is one message's scores, earliest first, each score in the range 0.0 to 1.0.
Give a one sentence advice and recommend a song to listen to.
Return ONLY a JSON object with this exact structure:
{"advice": "one sentence", "song": "artist - title"}`

// chatCompleter is the slice of the OpenAI client the classifier uses;
// narrowed so tests can stub it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClassifier scores text with an OpenAI chat model.
type OpenAIClassifier struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float64
	logger      *logger.Logger
}

// NewOpenAIClassifier creates a classifier against the hosted inference API.
func NewOpenAIClassifier(apiKey, model string, maxTokens int, temperature float64, logger *logger.Logger) *OpenAIClassifier {
	return &OpenAIClassifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// ClassifyText implements Classifier.
func (c *OpenAIClassifier) ClassifyText(ctx context.Context, text string) (models.EmotionScores, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scoringSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("<text>%s</text>", text)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: float32(c.temperature),
	})
	if err != nil {
		return models.EmotionScores{}, fmt.Errorf("classifier invocation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.EmotionScores{}, fmt.Errorf("classifier returned no choices")
	}

	scores, err := parseScores(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.LogError(err, "failed to parse classifier response")
		return models.EmotionScores{}, err
	}
	return scores, nil
}

// DailyAdvice implements AdviceProvider.
func (c *OpenAIClassifier) DailyAdvice(ctx context.Context, scores []models.EmotionScores) (DailyAdvice, error) {
	lines := make([]string, 0, len(scores))
	for _, s := range scores {
		encoded, err := json.Marshal(s)
		if err != nil {
			continue
		}
		lines = append(lines, string(encoded))
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: adviceSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("<scores>\n%s\n</scores>", strings.Join(lines, "\n"))},
		},
		MaxTokens:   c.maxTokens,
		Temperature: float32(c.temperature),
	})
	if err != nil {
		return DailyAdvice{}, fmt.Errorf("advice invocation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return DailyAdvice{}, fmt.Errorf("advice returned no choices")
	}

	advice, err := parseAdvice(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.LogError(err, "failed to parse advice response")
		return DailyAdvice{}, err
	}
	return advice, nil
}
