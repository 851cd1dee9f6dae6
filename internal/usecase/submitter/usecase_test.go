package submitter

import (
	"context"
	"errors"
	"testing"
	"time"

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

type fakeSession struct {
	fillErr    error
	settled    *entity.RenderedPage
	settledErr error

	filledField  string
	filledSubmit string
	filledValue  string
}

func (s *fakeSession) Render(context.Context, string) (*entity.RenderedPage, error) {
	return nil, nil
}

func (s *fakeSession) FillAndSubmit(_ context.Context, field, submit, value string) error {
	s.filledField = field
	s.filledSubmit = submit
	s.filledValue = value
	return s.fillErr
}

func (s *fakeSession) WaitStable(context.Context, time.Duration) (*entity.RenderedPage, error) {
	return s.settled, s.settledErr
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (s *fakeSession) CurrentURL() string                         { return "" }
func (s *fakeSession) Close()                                     {}

func quizPage() *entity.QuizPage {
	return &entity.QuizPage{
		URL:  "https://quiz.example.com/q/1",
		Form: entity.FormSpec{FieldSelector: "#answer", SubmitSelector: `button[type="submit"]`},
	}
}

func TestSubmit_ReadsJSONVerdict(t *testing.T) {
	session := &fakeSession{
		settled: &entity.RenderedPage{
			Text: `{"correct": true, "url": "/q/2", "reason": "Well done"}`,
		},
	}
	uc := New(nopLogger{}, Config{})

	verdict, err := uc.Submit(context.Background(), session, quizPage(), &entity.Answer{Value: "42"})

	require.NoError(t, err)
	assert.True(t, verdict.Correct)
	assert.False(t, verdict.Terminal)
	assert.Equal(t, "/q/2", verdict.NextURL)
	assert.Equal(t, "42", session.filledValue)
	assert.Equal(t, "#answer", session.filledField)
}

func TestSubmit_NoAnswerField(t *testing.T) {
	uc := New(nopLogger{}, Config{})
	page := &entity.QuizPage{URL: "https://quiz.example.com/q/1"}

	_, err := uc.Submit(context.Background(), &fakeSession{}, page, &entity.Answer{Value: "x"})

	assert.ErrorIs(t, err, ErrNoAnswerField)
}

func TestSubmit_PropagatesStabilizeTimeout(t *testing.T) {
	session := &fakeSession{settledErr: output.ErrSubmissionTimeout}
	uc := New(nopLogger{}, Config{})

	_, err := uc.Submit(context.Background(), session, quizPage(), &entity.Answer{Value: "x"})

	assert.ErrorIs(t, err, output.ErrSubmissionTimeout)
}

func TestSubmit_FillFailureWrapped(t *testing.T) {
	fillErr := errors.New("element detached")
	session := &fakeSession{fillErr: fillErr}
	uc := New(nopLogger{}, Config{})

	_, err := uc.Submit(context.Background(), session, quizPage(), &entity.Answer{Value: "x"})

	assert.ErrorIs(t, err, fillErr)
}

func TestParseVerdict_JSON(t *testing.T) {
	t.Run("correct with next url", func(t *testing.T) {
		v := ParseVerdict(`Result: {"correct": true, "url": "https://quiz.example.com/q/7"}`, "")
		assert.True(t, v.Correct)
		assert.False(t, v.Terminal)
		assert.Equal(t, "https://quiz.example.com/q/7", v.NextURL)
	})

	t.Run("correct terminal", func(t *testing.T) {
		v := ParseVerdict(`{"correct": true, "reason": "Quiz complete"}`, "")
		assert.True(t, v.Correct)
		assert.True(t, v.Terminal)
		assert.Empty(t, v.NextURL)
		assert.Equal(t, "Quiz complete", v.Message)
	})

	t.Run("incorrect never terminal", func(t *testing.T) {
		v := ParseVerdict(`{"correct": false, "reason": "Wrong"}`, "")
		assert.False(t, v.Correct)
		assert.False(t, v.Terminal)
	})

	t.Run("next_url alias", func(t *testing.T) {
		v := ParseVerdict(`{"correct": true, "next_url": "/q/3"}`, "")
		assert.Equal(t, "/q/3", v.NextURL)
		assert.False(t, v.Terminal)
	})

	t.Run("json without correct key falls back to markers", func(t *testing.T) {
		v := ParseVerdict(`{"status": "ok"} Congratulations, correct answer!`, "")
		assert.True(t, v.Correct)
	})
}

func TestParseVerdict_Markers(t *testing.T) {
	t.Run("incorrect beats correct substring", func(t *testing.T) {
		v := ParseVerdict("Sorry, that is incorrect. Try again.", "")
		assert.False(t, v.Correct)
		assert.False(t, v.Terminal)
	})

	t.Run("correct with next link in markup", func(t *testing.T) {
		html := `<body><p>Correct!</p><a href="/q/4" rel="next">Continue</a></body>`
		v := ParseVerdict("Correct!", html)
		assert.True(t, v.Correct)
		assert.Equal(t, "/q/4", v.NextURL)
		assert.False(t, v.Terminal)
	})

	t.Run("correct without link is terminal", func(t *testing.T) {
		v := ParseVerdict("Congratulations, you completed the quiz!", "<body></body>")
		assert.True(t, v.Correct)
		assert.True(t, v.Terminal)
	})

	t.Run("link found by text", func(t *testing.T) {
		html := `<body><a href="/other">home</a><a href="/q/9">Next question</a></body>`
		v := ParseVerdict("Correct!", html)
		assert.Equal(t, "/q/9", v.NextURL)
	})

	t.Run("no markers means incorrect", func(t *testing.T) {
		v := ParseVerdict("Please answer the question below.", "<body></body>")
		assert.False(t, v.Correct)
	})
}
