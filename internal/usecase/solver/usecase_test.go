package solver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                          {}
func (nopLogger) Info(string, ...any)                           {}
func (nopLogger) Warn(string, ...any)                           {}
func (nopLogger) Error(string, ...any)                          {}
func (l nopLogger) WithField(string, any) output.LoggerPort     { return l }
func (l nopLogger) WithFields(map[string]any) output.LoggerPort { return l }
func (nopLogger) Close() error                                  { return nil }

type fakeLLM struct {
	completion string
	err        error
	lastReq    output.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req output.CompletionRequest) (string, error) {
	f.lastReq = req
	return f.completion, f.err
}

func TestSolve_ParsesAnswerFromCompletion(t *testing.T) {
	llm := &fakeLLM{completion: "The table lists 4 rows.\nANSWER: 4"}
	uc := New(llm, nopLogger{}, Config{})

	page := &entity.QuizPage{QuestionText: "How many rows does the table have?"}
	answer, err := uc.Solve(context.Background(), page, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "4", answer.Value)
	assert.Contains(t, answer.Rationale, "4 rows")
	assert.Contains(t, llm.lastReq.Prompt, "How many rows")
	assert.NotEmpty(t, llm.lastReq.System)
}

func TestSolve_RejectedAnswersAppearInPrompt(t *testing.T) {
	llm := &fakeLLM{completion: "ANSWER: 5"}
	uc := New(llm, nopLogger{}, Config{})

	page := &entity.QuizPage{QuestionText: "2+2?"}
	_, err := uc.Solve(context.Background(), page, nil, []string{"3", "22"})

	require.NoError(t, err)
	assert.Contains(t, llm.lastReq.Prompt, "3")
	assert.Contains(t, llm.lastReq.Prompt, "22")
	assert.Contains(t, strings.ToLower(llm.lastReq.Prompt), "rejected")
}

func TestSolve_ResourceTextAndImagesForwarded(t *testing.T) {
	llm := &fakeLLM{completion: "ANSWER: blue"}
	uc := New(llm, nopLogger{}, Config{})

	resources := []entity.Resource{
		{Kind: entity.ResourceLink, RawLocator: "data.csv", MimeType: "text/csv", ExtractedText: "color\nblue"},
		{Kind: entity.ResourceLink, RawLocator: "chart.png", MimeType: "image/png", ImageData: []byte{0x89, 0x50}, ExtractedText: "(image, 2 bytes, attached)"},
	}
	page := &entity.QuizPage{QuestionText: "Which color appears in the data?"}

	_, err := uc.Solve(context.Background(), page, resources, nil)

	require.NoError(t, err)
	assert.Contains(t, llm.lastReq.Prompt, "color\nblue")
	require.Len(t, llm.lastReq.Images, 1)
	assert.Equal(t, []byte{0x89, 0x50}, llm.lastReq.Images[0])
}

func TestSolve_TruncationKeepsQuestionIntact(t *testing.T) {
	llm := &fakeLLM{completion: "ANSWER: x"}
	uc := New(llm, nopLogger{}, Config{MaxPromptChars: 3_000})

	question := "What is the last word of the attached document?"
	resources := []entity.Resource{
		{Kind: entity.ResourceLink, RawLocator: "big.txt", ExtractedText: strings.Repeat("lorem ipsum ", 2_000)},
	}

	_, err := uc.Solve(context.Background(), &entity.QuizPage{QuestionText: question}, resources, nil)

	require.NoError(t, err)
	assert.Contains(t, llm.lastReq.Prompt, question)
	assert.Less(t, len(llm.lastReq.Prompt), 4_000)
}

func TestSolve_MalformedCompletionFails(t *testing.T) {
	llm := &fakeLLM{completion: "I am not sure about this one."}
	uc := New(llm, nopLogger{}, Config{})

	_, err := uc.Solve(context.Background(), &entity.QuizPage{QuestionText: "?"}, nil, nil)

	assert.ErrorIs(t, err, ErrMalformedAnswer)
}

func TestParseAnswer(t *testing.T) {
	t.Run("last answer line wins", func(t *testing.T) {
		answer, err := ParseAnswer("ANSWER: draft\nWait, checking again.\nANSWER: final")
		require.NoError(t, err)
		assert.Equal(t, "final", answer.Value)
	})

	t.Run("strips surrounding quotes", func(t *testing.T) {
		answer, err := ParseAnswer(`ANSWER: "Paris"`)
		require.NoError(t, err)
		assert.Equal(t, "Paris", answer.Value)
	})

	t.Run("rationale precedes the answer", func(t *testing.T) {
		answer, err := ParseAnswer("The capital of France is Paris.\nANSWER: Paris")
		require.NoError(t, err)
		assert.Equal(t, "The capital of France is Paris.", answer.Rationale)
	})

	t.Run("no answer line", func(t *testing.T) {
		_, err := ParseAnswer("no idea")
		assert.ErrorIs(t, err, ErrMalformedAnswer)
	})

	t.Run("empty value", func(t *testing.T) {
		_, err := ParseAnswer(`ANSWER: ""`)
		assert.ErrorIs(t, err, ErrMalformedAnswer)
	})
}

func TestHeadOf(t *testing.T) {
	assert.Equal(t, "short", headOf("short", 100))
	assert.Equal(t, "", headOf("anything", 0))

	long := strings.Repeat("word ", 400)
	head := headOf(long, 50)
	assert.LessOrEqual(t, len(head), 50)
	assert.NotEmpty(t, head)
}
