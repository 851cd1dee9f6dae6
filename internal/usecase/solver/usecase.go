package solver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/domain/entity"
	"quiz-agent/internal/infrastructure/prompts"
)

// ErrMalformedAnswer means the reasoning service returned no extractable
// value. The orchestrator treats it as a retryable SOLVE failure.
var ErrMalformedAnswer = errors.New("malformed answer: no ANSWER line in completion")

var answerLine = regexp.MustCompile(`(?m)^\s*ANSWER:\s*(.+?)\s*$`)

type Config struct {
	// MaxPromptChars caps the combined prompt size. The question text is
	// always kept intact; resource text is trimmed from the tail.
	MaxPromptChars int
	Temperature    float32
}

func DefaultConfig() Config {
	return Config{MaxPromptChars: 24_000}
}

// UseCase builds one reasoning request per solve attempt and parses the
// structured answer out of the completion. Stateless per call; rejected
// answers are the caller's memory, not ours.
type UseCase struct {
	llm    output.LLMPort
	logger output.LoggerPort
	cfg    Config
}

func New(llm output.LLMPort, logger output.LoggerPort, cfg Config) *UseCase {
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = DefaultConfig().MaxPromptChars
	}
	return &UseCase{llm: llm, logger: logger, cfg: cfg}
}

func (uc *UseCase) Solve(ctx context.Context, page *entity.QuizPage, resources []entity.Resource, rejected []string) (*entity.Answer, error) {
	sections, images := uc.resourceSections(page.QuestionText, resources)

	prompt, err := prompts.GenerateSolvePrompt(prompts.SolveData{
		Question:  page.QuestionText,
		Resources: sections,
		Rejected:  rejected,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt generation failed: %w", err)
	}

	uc.logger.Debug("Solve request built", "prompt_chars", len(prompt), "resources", len(sections), "images", len(images), "rejected", len(rejected))

	completion, err := uc.llm.Complete(ctx, output.CompletionRequest{
		System:      prompts.SolverSystemPrompt,
		Prompt:      prompt,
		Images:      images,
		Temperature: uc.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	answer, err := ParseAnswer(completion)
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// resourceSections renders each resource into a labeled prompt section,
// trimming from the least-relevant end so the question always fits whole.
func (uc *UseCase) resourceSections(question string, resources []entity.Resource) ([]prompts.ResourceSection, [][]byte) {
	var sections []prompts.ResourceSection
	var images [][]byte

	// Reserve room for the question, the system prompt and template glue.
	budget := uc.cfg.MaxPromptChars - len(question) - 2_000
	if budget < 0 {
		budget = 0
	}

	for _, res := range resources {
		if len(res.ImageData) > 0 {
			images = append(images, res.ImageData)
		}

		text := res.ExtractedText
		if text == "" {
			continue
		}

		if len(text) > budget {
			text = headOf(text, budget)
		}
		if text == "" {
			// Out of budget: later resources are the least relevant end.
			break
		}
		budget -= len(text)

		sections = append(sections, prompts.ResourceSection{
			Label: sectionLabel(res),
			Text:  text,
		})
	}

	return sections, images
}

// headOf keeps the leading chunk of text that fits limit, cutting on natural
// boundaries where possible.
func headOf(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(limit),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return text[:limit]
	}
	if len(chunks[0]) > limit {
		return chunks[0][:limit]
	}
	return chunks[0]
}

func sectionLabel(res entity.Resource) string {
	switch res.Kind {
	case entity.ResourceLink:
		if res.MimeType != "" {
			return fmt.Sprintf("%s (%s)", res.RawLocator, res.MimeType)
		}
		return res.RawLocator
	case entity.ResourceTable:
		return "table from the quiz page"
	case entity.ResourceEmbeddedText:
		return "text block from the quiz page"
	}
	return res.RawLocator
}

// ParseAnswer extracts the delimited answer token from a completion. The
// last ANSWER line wins so earlier reasoning cannot shadow the final value.
func ParseAnswer(completion string) (*entity.Answer, error) {
	matches := answerLine.FindAllStringSubmatch(completion, -1)
	if len(matches) == 0 {
		return nil, ErrMalformedAnswer
	}

	value := strings.TrimSpace(matches[len(matches)-1][1])
	value = strings.Trim(value, `"'`)
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrMalformedAnswer
	}

	rationale := strings.TrimSpace(completion[:strings.LastIndex(completion, "ANSWER:")])

	return &entity.Answer{
		Value:     value,
		Rationale: rationale,
	}, nil
}
