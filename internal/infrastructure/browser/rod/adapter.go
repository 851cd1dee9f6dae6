package rod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/domain/entity"
)

var (
	_ output.SessionFactory = (*Factory)(nil)
	_ output.SessionPort    = (*Session)(nil)
)

type Config struct {
	Headless    bool
	NoSandbox   bool
	SlowMotion  time.Duration
	FindTimeout time.Duration
	IdleWait    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Headless:    true,
		NoSandbox:   true,
		SlowMotion:  0,
		FindTimeout: 10 * time.Second,
		IdleWait:    5 * time.Second,
	}
}

// Factory launches one Chromium process per session so concurrent chains
// never share cookies, history or in-flight navigation state.
type Factory struct {
	cfg Config
}

func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) NewSession(ctx context.Context) (output.SessionPort, error) {
	l := launcher.New().
		Headless(f.cfg.Headless).
		NoSandbox(f.cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-web-security").
		Set("allow-running-insecure-content").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		SlowMotion(f.cfg.SlowMotion).
		Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &Session{
		browser:  browser,
		launcher: l,
		page:     page,
		cfg:      f.cfg,
	}, nil
}

// Session is a single-chain browser session. Callers own it exclusively and
// must Close it on every exit path.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	cfg      Config
}

func (s *Session) Render(ctx context.Context, url string) (*entity.RenderedPage, error) {
	p := s.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigation failed: %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page load failed: %s: %w", url, err)
	}
	// Idle wait is best effort; busy pages keep polling forever otherwise.
	_ = p.WaitIdle(s.cfg.IdleWait)

	return s.snapshot(p)
}

func (s *Session) FillAndSubmit(ctx context.Context, fieldSelector, submitSelector, value string) error {
	p := s.page.Context(ctx)

	el, err := p.Timeout(s.cfg.FindTimeout).Element(fieldSelector)
	if err != nil {
		return fmt.Errorf("answer field not found: %s: %w", fieldSelector, err)
	}

	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input failed: %w", err)
	}

	if submitSelector == "" {
		if err := el.Input("\r"); err != nil {
			return fmt.Errorf("failed to press Enter: %w", err)
		}
		return nil
	}

	btn, err := p.Timeout(s.cfg.FindTimeout).Element(submitSelector)
	if err != nil {
		return fmt.Errorf("submit control not found: %s: %w", submitSelector, err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (s *Session) WaitStable(ctx context.Context, timeout time.Duration) (*entity.RenderedPage, error) {
	p := s.page.Context(ctx)

	if err := p.Timeout(timeout).WaitStable(500 * time.Millisecond); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: page not settled after %s", output.ErrSubmissionTimeout, timeout)
		}
		return nil, fmt.Errorf("waiting for page to settle: %w", err)
	}

	return s.snapshot(p)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	p := s.page.Context(ctx)

	imgBytes, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if img.Bounds().Dx() > 1024 {
		img = imaging.Resize(img, 1024, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Session) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *Session) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
}

func (s *Session) snapshot(p *rod.Page) (*entity.RenderedPage, error) {
	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}

	body, err := p.Timeout(s.cfg.FindTimeout).Element("body")
	if err != nil {
		return nil, fmt.Errorf("body not found: %w", err)
	}
	html, err := body.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to get text: %w", err)
	}

	return &entity.RenderedPage{
		URL:   info.URL,
		Title: info.Title,
		HTML:  html,
		Text:  text,
	}, nil
}
