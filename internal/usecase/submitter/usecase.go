package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/domain/entity"
)

// ErrNoAnswerField means the quiz page exposed no input the answer could go
// into. Treated as a transport-class failure by the orchestrator.
var ErrNoAnswerField = errors.New("no answer field found on quiz page")

type Config struct {
	// StabilizeTimeout bounds the wait for the post-submission page state.
	// It is nested inside, and much shorter than, the chain deadline.
	StabilizeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{StabilizeTimeout: 10 * time.Second}
}

// UseCase fills the quiz form through the rendering session, waits for the
// page to settle and reads back the verdict. Stateless per call.
type UseCase struct {
	logger output.LoggerPort
	cfg    Config
}

func New(logger output.LoggerPort, cfg Config) *UseCase {
	if cfg.StabilizeTimeout <= 0 {
		cfg.StabilizeTimeout = DefaultConfig().StabilizeTimeout
	}
	return &UseCase{logger: logger, cfg: cfg}
}

func (uc *UseCase) Submit(ctx context.Context, session output.SessionPort, page *entity.QuizPage, answer *entity.Answer) (*entity.Verdict, error) {
	if page.Form.FieldSelector == "" {
		return nil, ErrNoAnswerField
	}

	if err := session.FillAndSubmit(ctx, page.Form.FieldSelector, page.Form.SubmitSelector, answer.Value); err != nil {
		return nil, fmt.Errorf("submission failed: %w", err)
	}

	settled, err := session.WaitStable(ctx, uc.cfg.StabilizeTimeout)
	if err != nil {
		return nil, err
	}

	verdict := ParseVerdict(settled.Text, settled.HTML)
	uc.logger.Info("Verdict read",
		"correct", verdict.Correct,
		"terminal", verdict.Terminal,
		"next", verdict.NextURL,
		"message", verdict.Message,
	)
	return verdict, nil
}

// jsonVerdict is the structured response quiz pages embed after submission.
type jsonVerdict struct {
	Correct bool   `json:"correct"`
	URL     string `json:"url"`
	NextURL string `json:"next_url"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ParseVerdict reads the page's verdict: an embedded JSON object when the
// page provides one, marker and next-link scanning otherwise. The returned
// verdict always satisfies the invariants terminal => no next URL and
// incorrect => not terminal.
func ParseVerdict(pageText, pageHTML string) *entity.Verdict {
	if v, ok := parseJSONVerdict(pageText); ok {
		return normalize(v)
	}
	return normalize(parseMarkerVerdict(pageText, pageHTML))
}

func parseJSONVerdict(text string) (*entity.Verdict, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}

	var jv jsonVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &jv); err != nil {
		return nil, false
	}
	if !strings.Contains(text[start:end+1], `"correct"`) {
		return nil, false
	}

	next := jv.URL
	if next == "" {
		next = jv.NextURL
	}
	message := jv.Reason
	if message == "" {
		message = jv.Message
	}

	return &entity.Verdict{
		Correct:  jv.Correct,
		Terminal: jv.Correct && next == "",
		NextURL:  next,
		Message:  message,
	}, true
}

func parseMarkerVerdict(pageText, pageHTML string) *entity.Verdict {
	lower := strings.ToLower(pageText)

	// "incorrect" contains "correct", so the negative markers go first.
	correct := false
	switch {
	case containsAny(lower, "incorrect", "wrong answer", "try again", "not correct"):
		correct = false
	case containsAny(lower, "correct", "congratulations", "well done", "completed"):
		correct = true
	}

	next := findNextLink(pageHTML)

	return &entity.Verdict{
		Correct:  correct,
		Terminal: correct && next == "",
		NextURL:  next,
		Message:  firstLine(pageText),
	}
}

func findNextLink(pageHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	if href, ok := doc.Find(`a[rel="next"], a#next`).First().Attr("href"); ok {
		return href
	}

	var next string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "next") {
			next, _ = s.Attr("href")
			return false
		}
		return true
	})
	return next
}

func normalize(v *entity.Verdict) *entity.Verdict {
	if !v.Correct {
		v.Terminal = false
	}
	if v.Terminal {
		v.NextURL = ""
	}
	return v
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
