package classifier

import (
	"context"
	"errors"
	"testing"

	"emotion-pulse/backend/pkg/logger"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func testLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	return logger.New(cfg)
}

func TestParseScores(t *testing.T) {
	scores, err := parseScores(`{"joy":0.1,"sad":0.8,"anger":0.0,"fear":0.7,"disgust":0.0,"contempt":0.0,"surprise":0.2}`)
	require.NoError(t, err)
	assert.Equal(t, 0.8, scores.Sad)
	assert.Equal(t, 0.7, scores.Fear)
}

func TestParseScoresCodeFence(t *testing.T) {
	scores, err := parseScores("```json\n{\"joy\":0.5,\"sad\":0,\"anger\":0,\"fear\":0,\"disgust\":0,\"contempt\":0,\"surprise\":0}\n```")
	require.NoError(t, err)
	assert.Equal(t, 0.5, scores.Joy)
}

func TestParseScoresClampsOutOfRange(t *testing.T) {
	scores, err := parseScores(`{"joy":1.6,"sad":-0.3,"anger":0.4,"fear":0,"disgust":0,"contempt":0,"surprise":0}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores.Joy)
	assert.Equal(t, 0.0, scores.Sad)
	assert.Equal(t, 0.4, scores.Anger)
}

func TestParseScoresRejectsGarbage(t *testing.T) {
	_, err := parseScores("I cannot help with that")
	assert.Error(t, err)
}

func TestClassifyText(t *testing.T) {
	stub := &stubCompleter{content: `{"joy":0,"sad":0.9,"anger":0.1,"fear":0.6,"disgust":0,"contempt":0,"surprise":0}`}
	c := &OpenAIClassifier{client: stub, model: "gpt-4o-mini", maxTokens: 300, logger: testLogger()}

	scores, err := c.ClassifyText(context.Background(), "I failed the exam")
	require.NoError(t, err)
	assert.Equal(t, 0.9, scores.Sad)
	assert.Equal(t, "gpt-4o-mini", stub.lastReq.Model)
	assert.Contains(t, stub.lastReq.Messages[1].Content, "<text>I failed the exam</text>")
}

func TestClassifyTextPropagatesError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("rate limited")}
	c := &OpenAIClassifier{client: stub, model: "gpt-4o-mini", logger: testLogger()}

	_, err := c.ClassifyText(context.Background(), "hello")
	assert.Error(t, err)
}

func TestDailyAdvice(t *testing.T) {
	stub := &stubCompleter{content: `{"advice":"Take a walk before standup.","song":"Bill Withers - Lovely Day"}`}
	c := &OpenAIClassifier{client: stub, model: "gpt-4o-mini", logger: testLogger()}

	advice, err := c.DailyAdvice(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Take a walk before standup.", advice.Advice)
	assert.Contains(t, advice.Song, "Lovely Day")
}
