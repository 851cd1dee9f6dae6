package di

import (
	"fmt"
	"time"

	"quiz-agent/internal/api"
	"quiz-agent/internal/application/port/input"
	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/infrastructure/browser/rod"
	"quiz-agent/internal/infrastructure/env"
	"quiz-agent/internal/infrastructure/extract"
	"quiz-agent/internal/infrastructure/fetch"
	"quiz-agent/internal/infrastructure/llm/openrouter"
	"quiz-agent/internal/infrastructure/logger"
	"quiz-agent/internal/usecase/gatherer"
	"quiz-agent/internal/usecase/orchestrator"
	"quiz-agent/internal/usecase/solver"
	"quiz-agent/internal/usecase/submitter"
)

type Container struct {
	Logger output.LoggerPort
	Runner input.ChainRunner
	Server *api.Server
}

type Config struct {
	OpenRouterAPIKey string
	OpenRouterModel  string

	Addr          string
	Budget        time.Duration
	MaxConcurrent int
	Email         string
	Secret        string

	BrowserHeadless bool
	ScreenshotDir   string
	Debug           bool
}

// ConfigFromEnv reads the full runtime configuration. Only the API key is
// mandatory; everything else has a workable default.
func ConfigFromEnv(envs *env.EnvService) Config {
	return Config{
		OpenRouterAPIKey: envs.MustGet("OPENROUTER_API_KEY"),
		OpenRouterModel:  envs.GetDefault("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		Addr:             envs.GetDefault("LISTEN_ADDR", ":8080"),
		Budget:           envs.GetDuration("CHAIN_BUDGET", 3*time.Minute),
		MaxConcurrent:    envs.GetInt("MAX_CONCURRENT_CHAINS", 2),
		Email:            envs.Get("QUIZ_EMAIL"),
		Secret:           envs.Get("QUIZ_SECRET"),
		BrowserHeadless:  envs.GetBool("BROWSER_HEADLESS", true),
		ScreenshotDir:    envs.Get("SCREENSHOT_DIR"),
		Debug:            envs.GetBool("DEBUG", false),
	}
}

func NewContainer(cfg Config) (*Container, error) {
	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	llmCfg := openrouter.DefaultConfig(cfg.OpenRouterAPIKey, cfg.OpenRouterModel)
	if cfg.Debug {
		llmCfg.Logger = log
	}
	llm := openrouter.New(llmCfg)

	extractor := extract.New(llm)
	fetcher := fetch.New()

	browserCfg := rod.DefaultConfig()
	browserCfg.Headless = cfg.BrowserHeadless
	sessions := rod.NewFactory(browserCfg)

	gatherUC := gatherer.New(fetcher, extractor, log)
	solveUC := solver.New(llm, log, solver.Config{})
	submitUC := submitter.New(log, submitter.Config{})

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.ScreenshotDir = cfg.ScreenshotDir
	runner := orchestrator.New(sessions, gatherUC, solveUC, submitUC, fetcher, log, orchCfg)

	server := api.NewServer(runner, api.Config{
		Addr:          cfg.Addr,
		Budget:        cfg.Budget,
		MaxConcurrent: cfg.MaxConcurrent,
		Email:         cfg.Email,
		Secret:        cfg.Secret,
	}, log)

	return &Container{
		Logger: log,
		Runner: runner,
		Server: server,
	}, nil
}

func (c *Container) Close() {
	if c.Logger != nil {
		c.Logger.Close()
	}
}
