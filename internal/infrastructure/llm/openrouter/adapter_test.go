package openrouter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-agent/internal/application/port/output"
)

func TestBuildUserMessage_TextOnly(t *testing.T) {
	msg := buildUserMessage(output.CompletionRequest{Prompt: "What is 2+2?"})

	assert.Equal(t, openai.ChatMessageRoleUser, msg.Role)
	assert.Equal(t, "What is 2+2?", msg.Content)
	assert.Empty(t, msg.MultiContent)
}

func TestBuildUserMessage_WithImages(t *testing.T) {
	msg := buildUserMessage(output.CompletionRequest{
		Prompt: "What does the chart show?",
		Images: [][]byte{{0x01, 0x02}, {0x03}},
	})

	assert.Empty(t, msg.Content)
	require.Len(t, msg.MultiContent, 3)
	assert.Equal(t, openai.ChatMessagePartTypeText, msg.MultiContent[0].Type)
	assert.Equal(t, "What does the chart show?", msg.MultiContent[0].Text)

	for _, part := range msg.MultiContent[1:] {
		assert.Equal(t, openai.ChatMessagePartTypeImageURL, part.Type)
		require.NotNil(t, part.ImageURL)
		assert.True(t, strings.HasPrefix(part.ImageURL.URL, "data:image/jpeg;base64,"))
	}
}

func TestClassify(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		err := classify(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests})
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("server error", func(t *testing.T) {
		err := classify(&openai.APIError{HTTPStatusCode: http.StatusBadGateway})
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})

	t.Run("client error is not transport class", func(t *testing.T) {
		err := classify(&openai.APIError{HTTPStatusCode: http.StatusBadRequest})
		assert.NotErrorIs(t, err, ErrRateLimited)
		assert.NotErrorIs(t, err, ErrServiceUnavailable)
	})

	t.Run("context errors pass through", func(t *testing.T) {
		assert.ErrorIs(t, classify(context.DeadlineExceeded), context.DeadlineExceeded)
		assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	})

	t.Run("unknown errors map to unavailable", func(t *testing.T) {
		err := classify(errors.New("connection reset"))
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})
}
