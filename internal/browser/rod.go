package browser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

// RodOptions configures the rod-backed driver.
type RodOptions struct {
	Headless bool
	// Stealth opens pages with anti-bot-detection patches applied.
	Stealth bool
	// NavigationTimeout bounds Navigate + wait condition. Default 60 s.
	NavigationTimeout time.Duration
}

// RodDriver implements Driver on a Chromium instance controlled via rod.
type RodDriver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     RodOptions
	logger   zerolog.Logger
}

var _ Driver = (*RodDriver)(nil)

// NewRodDriver launches a browser process and connects to it.
func NewRodDriver(opts RodOptions, logger zerolog.Logger) (*RodDriver, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}

	l := launcher.New().Headless(opts.Headless).NoSandbox(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &RodDriver{browser: b, launcher: l, opts: opts, logger: logger}, nil
}

// Open creates a new page and loads the URL.
func (d *RodDriver) Open(ctx context.Context, url string, opts OpenOptions) (Session, error) {
	var page *rod.Page
	var err error
	if d.opts.Stealth {
		page, err = stealth.Page(d.browser)
	} else {
		page, err = d.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	s := &rodSession{page: page, navTimeout: d.opts.NavigationTimeout, logger: d.logger}
	if err := s.Navigate(ctx, url, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close shuts down the browser and its process.
func (d *RodDriver) Close() error {
	err := d.browser.Close()
	d.launcher.Kill()
	return err
}

type rodSession struct {
	page       *rod.Page
	navTimeout time.Duration
	logger     zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*rodSession)(nil)

func (s *rodSession) Navigate(ctx context.Context, url string, opts OpenOptions) error {
	page := s.page.Context(ctx).Timeout(s.navTimeout)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	if opts.Until != WaitDOMContentLoaded {
		// networkidle: wait until requests settle, bounded by the nav timeout.
		if err := rod.Try(func() { page.MustWaitIdle() }); err != nil {
			s.logger.Debug().Err(err).Str("url", url).Msg("browser: idle wait ended early")
		}
	}
	sleepCtx(ctx, opts.PostDelay)
	sleepCtx(ctx, opts.ExtraDelayAfterLoad)
	return nil
}

func (s *rodSession) Click(ctx context.Context, selector string, timeout time.Duration) bool {
	page := s.page.Context(ctx)
	err := rod.Try(func() {
		el := page.Timeout(timeout).MustElement(selector)
		if visible, _ := el.Visible(); !visible {
			panic(fmt.Sprintf("element %s not visible", selector))
		}
		el.MustScrollIntoView()
		el.MustClick()
	})
	return err == nil
}

func (s *rodSession) ClickText(ctx context.Context, text string, timeout time.Duration) bool {
	page := s.page.Context(ctx)
	pattern := "(?i)^\\s*" + regexp.QuoteMeta(text) + "\\s*$"
	err := rod.Try(func() {
		el := page.Timeout(timeout).MustElementR("button, a, span, div", pattern)
		if visible, _ := el.Visible(); !visible {
			panic(fmt.Sprintf("element with text %q not visible", text))
		}
		el.MustScrollIntoView()
		el.MustClick()
	})
	return err == nil
}

func (s *rodSession) ScrollToBottom(ctx context.Context) error {
	page := s.page.Context(ctx)
	_, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	if err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

func (s *rodSession) InnerText(ctx context.Context, selector string) (string, error) {
	var text string
	err := rod.Try(func() {
		el := s.page.Context(ctx).Timeout(5 * time.Second).MustElement(selector)
		text = el.MustText()
	})
	if err != nil {
		return "", fmt.Errorf("inner text %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (s *rodSession) InnerHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := rod.Try(func() {
		el := s.page.Context(ctx).Timeout(5 * time.Second).MustElement(selector)
		html = el.MustHTML()
	})
	if err != nil {
		return "", fmt.Errorf("inner html %s: %w", selector, err)
	}
	return html, nil
}

func (s *rodSession) GetAttribute(ctx context.Context, selector, attr string) (string, error) {
	var value string
	err := rod.Try(func() {
		el := s.page.Context(ctx).Timeout(5 * time.Second).MustElement(selector)
		if v := el.MustAttribute(attr); v != nil {
			value = *v
		}
	})
	if err != nil {
		return "", fmt.Errorf("attribute %s of %s: %w", attr, selector, err)
	}
	return value, nil
}

func (s *rodSession) Count(ctx context.Context, selector string) (int, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return len(els), nil
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

func (s *rodSession) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.page.Close()
	})
	return s.closeErr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
