package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fakeDriver is an in-memory Driver. Contexts it hands out write small
// placeholder files wherever a real browser would write artifacts.
type fakeDriver struct {
	mu         sync.Mutex
	contextErr error
	contexts   []*fakeContext
	// configure, when set, adjusts each context before it is returned.
	configure func(*fakeContext)
	closed    bool
}

func newFakeDriver() *fakeDriver { return &fakeDriver{} }

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Formats() ArtifactFormats {
	return ArtifactFormats{Trace: ".zip", Screenshot: ".png", Video: ".webm"}
}

func (d *fakeDriver) NewContext(opts ContextOptions) (BrowserContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.contextErr != nil {
		return nil, d.contextErr
	}
	c := &fakeContext{opts: opts}
	if d.configure != nil {
		d.configure(c)
	}
	d.contexts = append(d.contexts, c)
	return c, nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) lastContext() *fakeContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.contexts) == 0 {
		return nil
	}
	return d.contexts[len(d.contexts)-1]
}

type fakeContext struct {
	opts ContextOptions

	startErr   error
	stopErr    error
	newPageErr error

	tracing bool
	page    *fakePage
	closed  bool
}

func (c *fakeContext) StartTrace(opts TraceOptions) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.tracing = true
	return nil
}

func (c *fakeContext) StopTrace(path string) error {
	if c.stopErr != nil {
		return c.stopErr
	}
	if !c.tracing {
		return errors.New("trace not started")
	}
	c.tracing = false
	return os.WriteFile(path, []byte("trace"), 0644)
}

func (c *fakeContext) NewPage() (Page, error) {
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	c.page = newFakePage()
	c.page.defaultTimeout = c.opts.DefaultTimeout
	if c.opts.VideoDir != "" {
		c.page.video = &fakeVideo{path: filepath.Join(c.opts.VideoDir, fmt.Sprintf("%p.webm", c.page))}
	}
	return c.page, nil
}

// Close flushes the video file, as browsers do once a context ends.
func (c *fakeContext) Close() error {
	c.closed = true
	if c.page != nil && c.page.video != nil && !c.page.video.skipWrite {
		return os.WriteFile(c.page.video.path, []byte("video"), 0644)
	}
	return nil
}

type fakeVideo struct {
	path      string
	pathErr   error
	skipWrite bool
}

func (v *fakeVideo) Path() (string, error) {
	if v.pathErr != nil {
		return "", v.pathErr
	}
	return v.path, nil
}

// fakePage records calls and returns scripted errors. Selectors listed in
// errs fail every operation on them.
type fakePage struct {
	mu             sync.Mutex
	url            string
	closed         bool
	defaultTimeout time.Duration

	errs          map[string]error
	counts        map[string]int
	calls         []string
	screenshotErr error
	urlErr        error
	response      *Response
	responseErr   error
	video         *fakeVideo

	console       []func(ConsoleMessage)
	pageErrors    []func(error)
	requestErrors []func(FailedRequest)
}

func newFakePage() *fakePage {
	return &fakePage{
		errs:   make(map[string]error),
		counts: make(map[string]int),
	}
}

func (p *fakePage) record(op, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	p.calls = append(p.calls, op+" "+selector)
	return p.errs[selector]
}

func (p *fakePage) Goto(url string) error {
	if err := p.record("goto", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Click(selector string, timeout time.Duration) error {
	return p.record("click", selector)
}

func (p *fakePage) Fill(selector, value string, timeout time.Duration) error {
	if err := p.record("fill", selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.calls[len(p.calls)-1] += "=" + value
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitVisible(selector string, timeout time.Duration) error {
	return p.record("visible", selector)
}

func (p *fakePage) WaitHidden(selector string, timeout time.Duration) error {
	return p.record("hidden", selector)
}

func (p *fakePage) SelectOption(selector, value string, timeout time.Duration) error {
	if err := p.record("select", selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.calls[len(p.calls)-1] += "=" + value
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Check(selector string, timeout time.Duration) error {
	return p.record("check", selector)
}

func (p *fakePage) Count(selector string) (int, error) {
	if err := p.record("count", selector); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[selector], nil
}

func (p *fakePage) WaitForURL(substr string, timeout time.Duration) error {
	if p.urlErr != nil {
		return p.urlErr
	}
	if !strings.Contains(p.URL(), substr) {
		return fmt.Errorf("url %q: %w", p.URL(), errTestTimeout)
	}
	return nil
}

func (p *fakePage) WaitForResponse(substr string, timeout time.Duration, action func() error) (*Response, error) {
	if action != nil {
		if err := action(); err != nil {
			return nil, err
		}
	}
	if p.responseErr != nil {
		return nil, p.responseErr
	}
	return p.response, nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) OnConsole(h func(ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.console = append(p.console, h)
}

func (p *fakePage) OnPageError(h func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageErrors = append(p.pageErrors, h)
}

func (p *fakePage) OnRequestFailed(h func(FailedRequest)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestErrors = append(p.requestErrors, h)
}

func (p *fakePage) Screenshot(path string, fullPage bool) error {
	if p.IsClosed() {
		return ErrPageClosed
	}
	if p.screenshotErr != nil {
		return p.screenshotErr
	}
	return os.WriteFile(path, []byte("png"), 0644)
}

func (p *fakePage) Video() Video {
	if p.video == nil {
		return nil
	}
	return p.video
}

func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) emitConsole(msg ConsoleMessage) {
	p.mu.Lock()
	handlers := append([]func(ConsoleMessage){}, p.console...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (p *fakePage) emitPageError(err error) {
	p.mu.Lock()
	handlers := append([]func(error){}, p.pageErrors...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}

func (p *fakePage) emitRequestFailed(req FailedRequest) {
	p.mu.Lock()
	handlers := append([]func(FailedRequest){}, p.requestErrors...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(req)
	}
}

func (p *fakePage) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

// errTestTimeout stands in for a driver timeout.
var errTestTimeout = fmt.Errorf("fake timeout: %w", context.DeadlineExceeded)

type fakeConsole struct {
	level, text string
	loc         *SourceLocation
}

func (m fakeConsole) Type() string              { return m.level }
func (m fakeConsole) Text() string              { return m.text }
func (m fakeConsole) Location() *SourceLocation { return m.loc }

type fakeFailedRequest struct {
	url     string
	failure error
}

func (r fakeFailedRequest) URL() string    { return r.url }
func (r fakeFailedRequest) Failure() error { return r.failure }
