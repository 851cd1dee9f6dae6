package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"quiz-agent/internal/application/port/input"
	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/domain/entity"
)

var _ input.ChainRunner = (*UseCase)(nil)

// ErrDeadlineExceeded marks a chain stopped by its wall-clock budget. It is
// never retried.
var ErrDeadlineExceeded = errors.New("chain deadline exceeded")

// ErrWrongAnswerBudget marks a link whose per-link wrong-answer cap was
// exhausted without a skip link on the page.
var ErrWrongAnswerBudget = errors.New("wrong-answer budget exhausted")

type Config struct {
	// MaxRetries bounds consecutive failures of one component within a link.
	MaxRetries int
	// MaxWrongAnswers bounds SOLVE->SUBMIT round trips per link after
	// incorrect verdicts.
	MaxWrongAnswers int
	// RetryBackoff is a fixed pause between attempts. The budget is short,
	// so backoff stays flat instead of exponential.
	RetryBackoff time.Duration
	// ReserveFloor seeds the budget reserve checked before each new link.
	// The reserve grows to the largest observed single-link latency.
	ReserveFloor time.Duration
	// ScreenshotDir, when set, receives a diagnostic screenshot of the
	// current page whenever a chain aborts.
	ScreenshotDir string
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		MaxWrongAnswers: 3,
		RetryBackoff:    2 * time.Second,
		ReserveFloor:    10 * time.Second,
	}
}

// Gatherer turns a rendered page into a QuizPage and populates its resources.
type Gatherer interface {
	Parse(rendered *entity.RenderedPage) *entity.QuizPage
	Gather(ctx context.Context, page *entity.QuizPage) []entity.Resource
}

// Solver produces a candidate answer, avoiding previously rejected values.
type Solver interface {
	Solve(ctx context.Context, page *entity.QuizPage, resources []entity.Resource, rejected []string) (*entity.Answer, error)
}

// Submitter posts an answer through the rendering session and reads the
// page's verdict.
type Submitter interface {
	Submit(ctx context.Context, session output.SessionPort, page *entity.QuizPage, answer *entity.Answer) (*entity.Verdict, error)
}

// UseCase drives one quiz chain through the
// FETCH -> GATHER -> SOLVE -> SUBMIT -> ADVANCE loop. It is the only
// component with cross-link memory; a single instance is safe for concurrent
// Run calls because all loop state is per-call.
type UseCase struct {
	sessions  output.SessionFactory
	gatherer  Gatherer
	solver    Solver
	submitter Submitter
	fetcher   output.FetcherPort
	logger    output.LoggerPort
	cfg       Config
}

func New(
	sessions output.SessionFactory,
	gatherer Gatherer,
	solver Solver,
	submitter Submitter,
	fetcher output.FetcherPort,
	logger output.LoggerPort,
	cfg Config,
) *UseCase {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.MaxWrongAnswers <= 0 {
		cfg.MaxWrongAnswers = DefaultConfig().MaxWrongAnswers
	}
	return &UseCase{
		sessions:  sessions,
		gatherer:  gatherer,
		solver:    solver,
		submitter: submitter,
		fetcher:   fetcher,
		logger:    logger,
		cfg:       cfg,
	}
}

func (uc *UseCase) Run(ctx context.Context, task entity.ChainTask) *entity.ChainResult {
	log := uc.logger.WithField("chain_id", task.ID)
	log.Info("Chain started", "url", task.StartURL, "deadline", task.Deadline.Format(time.RFC3339))

	ctx, cancel := context.WithDeadline(ctx, task.Deadline)
	defer cancel()

	session, err := uc.sessions.NewSession(ctx)
	if err != nil {
		log.Error("Session acquisition failed", "error", err)
		return &entity.ChainResult{Outcome: entity.OutcomeAborted, LastError: err}
	}
	defer session.Close()

	var (
		current = task.StartURL
		links   = 0
		reserve = uc.cfg.ReserveFloor
	)

	for {
		// Proactive stop: starting a link the budget cannot finish only
		// wastes partial work.
		if remaining := time.Until(task.Deadline); remaining <= reserve {
			log.Info("Budget reserve reached, stopping", "remaining", remaining, "reserve", reserve, "links", links)
			return &entity.ChainResult{Outcome: entity.OutcomeTimedOut, LinksCompleted: links}
		}

		linkStart := time.Now()
		verdict, result := uc.runLink(ctx, log, session, task, current, links)
		if result != nil {
			if result.Outcome == entity.OutcomeAborted || result.Outcome == entity.OutcomeExhaustedRetries {
				uc.captureFailure(ctx, session, task.ID, log)
			}
			return result
		}

		if verdict.Correct {
			links++
			if lat := time.Since(linkStart); lat > reserve {
				reserve = lat
			}
			if verdict.Terminal || verdict.NextURL == "" {
				log.Info("Chain completed", "links", links)
				return &entity.ChainResult{Outcome: entity.OutcomeSolved, LinksCompleted: links}
			}
		}

		current = resolveURL(current, verdict.NextURL)
		log.Info("Advancing to next quiz", "url", current, "links", links, "skipped", !verdict.Correct)
	}
}

// runLink executes one FETCH..SUBMIT cycle. It returns either a verdict that
// lets the chain continue (correct, or an exhausted link the page lets us
// skip) or a terminal ChainResult, never both.
func (uc *UseCase) runLink(
	ctx context.Context,
	log output.LoggerPort,
	session output.SessionPort,
	task entity.ChainTask,
	current string,
	links int,
) (*entity.Verdict, *entity.ChainResult) {
	log = log.WithField("url", current)

	// FETCH
	rendered, err := retryOp(ctx, uc.cfg, task.Deadline, log, "fetch", func(ctx context.Context) (*entity.RenderedPage, error) {
		return session.Render(ctx, current)
	})
	if err != nil && uc.fetcher != nil &&
		!errors.Is(err, ErrDeadlineExceeded) && !errors.Is(err, context.Canceled) {
		// Last resort without JS rendering. The raw document still carries
		// the question and resource links even when the browser cannot
		// render it; the session may yet serve the later form fill.
		if fallback, ferr := uc.fetchFallback(ctx, current); ferr == nil {
			log.Warn("Browser render failed, using plain HTTP document", "error", err)
			rendered, err = fallback, nil
		} else {
			log.Warn("Plain HTTP fallback also failed", "error", ferr)
		}
	}
	if err != nil {
		return nil, uc.failLink(log, "fetch", err, links)
	}
	page := uc.gatherer.Parse(rendered)
	log.Info("Page fetched", "title", page.Title, "question_len", len(page.QuestionText), "resources", len(page.Resources))

	// GATHER: per-resource failures degrade to unavailable markers inside
	// Gather; the call itself never fails.
	if deadlinePassed(task.Deadline) {
		return nil, &entity.ChainResult{Outcome: entity.OutcomeTimedOut, LinksCompleted: links}
	}
	page.Resources = uc.gatherer.Gather(ctx, page)

	// SOLVE/SUBMIT with rejected-answer feedback.
	var rejected []string
	for wrong := 0; ; wrong++ {
		if deadlinePassed(task.Deadline) {
			return nil, &entity.ChainResult{Outcome: entity.OutcomeTimedOut, LinksCompleted: links}
		}

		answer, err := retryOp(ctx, uc.cfg, task.Deadline, log, "solve", func(ctx context.Context) (*entity.Answer, error) {
			return uc.solver.Solve(ctx, page, page.Resources, rejected)
		})
		if err != nil {
			return nil, uc.failLink(log, "solve", err, links)
		}
		log.Info("Answer produced", "value", truncateForLog(answer.Value), "rejected", len(rejected))

		verdict, err := retryOp(ctx, uc.cfg, task.Deadline, log, "submit", func(ctx context.Context) (*entity.Verdict, error) {
			return uc.submitter.Submit(ctx, session, page, answer)
		})
		if err != nil {
			return nil, uc.failLink(log, "submit", err, links)
		}

		if verdict.Correct {
			log.Info("Verdict correct", "terminal", verdict.Terminal, "next", verdict.NextURL)
			return verdict, nil
		}

		log.Warn("Verdict incorrect", "value", truncateForLog(answer.Value), "message", verdict.Message)
		rejected = append(rejected, answer.Value)

		if wrong+1 >= uc.cfg.MaxWrongAnswers {
			// Policy: a page that offers a next link after a wrong answer
			// lets the chain skip the link without counting it; otherwise
			// the chain stops and reports the progress made so far.
			if next := resolveURL(current, verdict.NextURL); verdict.NextURL != "" && next != current {
				log.Warn("Wrong-answer budget exhausted, skipping link", "next", verdict.NextURL)
				return &entity.Verdict{Correct: false, NextURL: verdict.NextURL}, nil
			}
			log.Error("Wrong-answer budget exhausted, aborting chain", "attempts", wrong+1)
			return nil, &entity.ChainResult{
				Outcome:        entity.OutcomeExhaustedRetries,
				LinksCompleted: links,
				LastError:      ErrWrongAnswerBudget,
			}
		}
	}
}

func (uc *UseCase) fetchFallback(ctx context.Context, url string) (*entity.RenderedPage, error) {
	data, mime, err := uc.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(mime, "html") && !strings.HasPrefix(mime, "text/") {
		return nil, fmt.Errorf("fallback fetch returned %s, not a document", mime)
	}
	return &entity.RenderedPage{URL: url, HTML: string(data), Text: string(data)}, nil
}

func (uc *UseCase) failLink(log output.LoggerPort, stage string, err error, links int) *entity.ChainResult {
	if errors.Is(err, ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		log.Info("Deadline reached", "stage", stage)
		return &entity.ChainResult{Outcome: entity.OutcomeTimedOut, LinksCompleted: links}
	}
	log.Error("Link failed", "stage", stage, "error", err)
	return &entity.ChainResult{Outcome: entity.OutcomeAborted, LinksCompleted: links, LastError: err}
}

// captureFailure saves a screenshot of the page the chain died on. Best
// effort; failures only log.
func (uc *UseCase) captureFailure(ctx context.Context, session output.SessionPort, chainID string, log output.LoggerPort) {
	if uc.cfg.ScreenshotDir == "" {
		return
	}
	shot, err := session.Screenshot(ctx)
	if err != nil {
		log.Warn("Failure screenshot not captured", "error", err)
		return
	}
	if err := os.MkdirAll(uc.cfg.ScreenshotDir, 0o755); err != nil {
		log.Warn("Screenshot dir not created", "error", err)
		return
	}
	path := filepath.Join(uc.cfg.ScreenshotDir, chainID+".jpg")
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		log.Warn("Screenshot not written", "error", err)
		return
	}
	log.Info("Failure screenshot written", "path", path)
}

// retryOp runs fn up to cfg.MaxRetries times with a fixed backoff. The
// deadline check runs before every attempt and wins over any pending retry.
func retryOp[T any](
	ctx context.Context,
	cfg Config,
	deadline time.Time,
	log output.LoggerPort,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if deadlinePassed(deadline) {
			return zero, ErrDeadlineExceeded
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && deadlinePassed(deadline) {
			return zero, ErrDeadlineExceeded
		}

		lastErr = err
		log.Warn("Attempt failed", "op", op, "attempt", attempt, "max", cfg.MaxRetries, "error", err)

		if attempt < cfg.MaxRetries && cfg.RetryBackoff > 0 {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				// External cancellation is not a budget stop and must not
				// be reported as one.
				if errors.Is(ctx.Err(), context.Canceled) {
					return zero, ctx.Err()
				}
				return zero, ErrDeadlineExceeded
			}
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, cfg.MaxRetries, lastErr)
}

func deadlinePassed(deadline time.Time) bool {
	return !time.Now().Before(deadline)
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func truncateForLog(s string) string {
	if len(s) <= 120 {
		return s
	}
	cut := 120
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
