package main

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver runs Chromium through Playwright. It produces native
// trace archives and WebM recordings.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightDriver starts Playwright and launches Chromium.
func NewPlaywrightDriver(opts LaunchOptions) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	if opts.ExecutablePath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecutablePath)
	}

	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return &PlaywrightDriver{pw: pw, browser: browser}, nil
}

// InstallPlaywright downloads the Playwright driver and Chromium.
func InstallPlaywright() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

func (d *PlaywrightDriver) Name() string { return "playwright" }

func (d *PlaywrightDriver) Formats() ArtifactFormats {
	return ArtifactFormats{Trace: ".zip", Screenshot: ".png", Video: ".webm"}
}

func (d *PlaywrightDriver) NewContext(opts ContextOptions) (BrowserContext, error) {
	o := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 {
		o.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	if opts.Locale != "" {
		o.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		o.TimezoneId = playwright.String(opts.TimezoneID)
	}
	if opts.VideoDir != "" {
		o.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
		if opts.VideoSize.Width > 0 {
			o.RecordVideo.Size = &playwright.Size{Width: opts.VideoSize.Width, Height: opts.VideoSize.Height}
		}
	}

	ctx, err := d.browser.NewContext(o)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if opts.InitScript != "" {
		if err := ctx.AddInitScript(playwright.Script{Content: playwright.String(opts.InitScript)}); err != nil {
			ctx.Close()
			return nil, fmt.Errorf("failed to add init script: %w", err)
		}
	}
	if opts.DefaultTimeout > 0 {
		ctx.SetDefaultTimeout(ms(opts.DefaultTimeout))
	}
	return &pwContext{ctx: ctx, defaultTimeout: opts.DefaultTimeout}, nil
}

func (d *PlaywrightDriver) Close() error {
	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
	}
	return errors.Join(errs...)
}

type pwContext struct {
	ctx            playwright.BrowserContext
	defaultTimeout time.Duration
}

func (c *pwContext) StartTrace(opts TraceOptions) error {
	return c.ctx.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(opts.Screenshots),
		Snapshots:   playwright.Bool(opts.Snapshots),
		Sources:     playwright.Bool(opts.Sources),
	})
}

func (c *pwContext) StopTrace(path string) error {
	return c.ctx.Tracing().Stop(path)
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{page: p, defaultTimeout: c.defaultTimeout}, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page           playwright.Page
	defaultTimeout time.Duration
}

func (p *pwPage) timeout(t time.Duration) *float64 {
	if t <= 0 {
		t = p.defaultTimeout
	}
	if t <= 0 {
		return nil
	}
	return playwright.Float(ms(t))
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: p.timeout(timeout)})
}

func (p *pwPage) Fill(selector, value string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: p.timeout(timeout)})
}

func (p *pwPage) WaitVisible(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: p.timeout(timeout),
	})
}

func (p *pwPage) WaitHidden(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateHidden,
		Timeout: p.timeout(timeout),
	})
}

func (p *pwPage) SelectOption(selector, value string, timeout time.Duration) error {
	_, err := p.page.Locator(selector).First().SelectOption(
		playwright.SelectOptionValues{Values: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: p.timeout(timeout)},
	)
	return err
}

func (p *pwPage) Check(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Check(playwright.LocatorCheckOptions{Timeout: p.timeout(timeout)})
}

func (p *pwPage) Count(selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *pwPage) WaitForURL(substr string, timeout time.Duration) error {
	return p.page.WaitForURL(regexp.MustCompile(regexp.QuoteMeta(substr)), playwright.PageWaitForURLOptions{
		Timeout: p.timeout(timeout),
	})
}

func (p *pwPage) WaitForResponse(substr string, timeout time.Duration, action func() error) (*Response, error) {
	resp, err := p.page.ExpectResponse(regexp.MustCompile(regexp.QuoteMeta(substr)), action,
		playwright.PageExpectResponseOptions{Timeout: p.timeout(timeout)})
	if err != nil {
		return nil, err
	}
	return &Response{URL: resp.URL(), Status: resp.Status()}, nil
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) OnConsole(handler func(ConsoleMessage)) {
	p.page.OnConsole(func(msg playwright.ConsoleMessage) {
		handler(pwConsoleMessage{msg})
	})
}

func (p *pwPage) OnPageError(handler func(error)) {
	p.page.OnPageError(handler)
}

func (p *pwPage) OnRequestFailed(handler func(FailedRequest)) {
	p.page.OnRequestFailed(func(req playwright.Request) {
		handler(req)
	})
}

func (p *pwPage) Screenshot(path string, fullPage bool) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return err
}

func (p *pwPage) Video() Video {
	v := p.page.Video()
	if v == nil {
		return nil
	}
	return v
}

func (p *pwPage) IsClosed() bool { return p.page.IsClosed() }

func (p *pwPage) Close() error { return p.page.Close() }

type pwConsoleMessage struct {
	msg playwright.ConsoleMessage
}

func (m pwConsoleMessage) Type() string { return m.msg.Type() }
func (m pwConsoleMessage) Text() string { return m.msg.Text() }

func (m pwConsoleMessage) Location() *SourceLocation {
	loc := m.msg.Location()
	if loc == nil {
		return nil
	}
	return &SourceLocation{URL: loc.URL, Line: loc.LineNumber, Column: loc.ColumnNumber}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
