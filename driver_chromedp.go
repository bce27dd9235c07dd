package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/tracing"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// traceCompleteTimeout bounds how long StopTrace waits for Chrome to flush
// the collected trace events.
const traceCompleteTimeout = 30 * time.Second

// ChromedpDriver drives Chrome over the DevTools protocol. Traces are
// Chrome trace-event JSON and videos are Motion-JPEG streams of screencast
// frames.
type ChromedpDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	slowMo      time.Duration
}

// NewChromedpDriver launches Chrome.
func NewChromedpDriver(opts LaunchOptions) (*ChromedpDriver, error) {
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if opts.Headless {
		execOpts = append(execOpts, chromedp.Headless)
	}
	if opts.ExecutablePath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecutablePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser now so later contexts can be created inside it.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromedpDriver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		slowMo:      opts.SlowMo,
	}, nil
}

func (d *ChromedpDriver) Name() string { return "chromedp" }

func (d *ChromedpDriver) Formats() ArtifactFormats {
	return ArtifactFormats{Trace: ".json", Screenshot: ".png", Video: ".mjpeg"}
}

func (d *ChromedpDriver) NewContext(opts ContextOptions) (BrowserContext, error) {
	ctx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithNewBrowserContext())
	return &cdpContext{
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		slowMo: d.slowMo,
	}, nil
}

func (d *ChromedpDriver) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}

// cdpContext is one browser context holding a single page target.
type cdpContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   ContextOptions
	slowMo time.Duration

	initOnce sync.Once
	initErr  error
	page     *cdpPage

	traceMu     sync.Mutex
	traceEvents [][]byte
	traceDone   chan struct{}
}

// init creates the page target, wires the event listener and applies the
// context options. Tracing may be started before the page is requested,
// so both paths go through here.
func (c *cdpContext) init() error {
	c.initOnce.Do(func() {
		c.page = &cdpPage{
			ctx:            c.ctx,
			cancel:         c.cancel,
			defaultTimeout: c.opts.DefaultTimeout,
			slowMo:         c.slowMo,
			requests:       make(map[network.RequestID]string),
		}
		chromedp.ListenTarget(c.ctx, c.onEvent)

		actions := []chromedp.Action{
			network.Enable(),
			runtime.Enable(),
		}
		if c.opts.Viewport.Width > 0 {
			actions = append(actions, chromedp.EmulateViewport(int64(c.opts.Viewport.Width), int64(c.opts.Viewport.Height)))
		}
		if c.opts.Locale != "" {
			actions = append(actions, emulation.SetLocaleOverride().WithLocale(c.opts.Locale))
		}
		if c.opts.TimezoneID != "" {
			actions = append(actions, emulation.SetTimezoneOverride(c.opts.TimezoneID))
		}
		if c.opts.InitScript != "" {
			script := c.opts.InitScript
			actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
				return err
			}))
		}
		c.initErr = chromedp.Run(c.ctx, actions...)
	})
	return c.initErr
}

func (c *cdpContext) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *tracing.EventDataCollected:
		c.traceMu.Lock()
		for _, v := range ev.Value {
			c.traceEvents = append(c.traceEvents, append([]byte(nil), v...))
		}
		c.traceMu.Unlock()
	case *tracing.EventTracingComplete:
		c.traceMu.Lock()
		if c.traceDone != nil {
			close(c.traceDone)
			c.traceDone = nil
		}
		c.traceMu.Unlock()
	default:
		c.page.onEvent(ev)
	}
}

func (c *cdpContext) StartTrace(opts TraceOptions) error {
	if err := c.init(); err != nil {
		return err
	}
	categories := []string{"devtools.timeline", "v8.execute", "blink.user_timing", "loading", "netlog"}
	if opts.Screenshots {
		categories = append(categories, "disabled-by-default-devtools.screenshot")
	}
	if opts.Snapshots {
		categories = append(categories, "disabled-by-default-devtools.timeline.frame")
	}
	if opts.Sources {
		categories = append(categories, "disabled-by-default-devtools.timeline.stack")
	}

	c.traceMu.Lock()
	c.traceEvents = nil
	c.traceDone = make(chan struct{})
	c.traceMu.Unlock()

	return chromedp.Run(c.ctx, tracing.Start().
		WithTransferMode(tracing.TransferModeReportEvents).
		WithTraceConfig(&tracing.TraceConfig{IncludedCategories: categories}))
}

func (c *cdpContext) StopTrace(path string) error {
	c.traceMu.Lock()
	done := c.traceDone
	c.traceMu.Unlock()
	if done == nil {
		return errors.New("trace not started")
	}

	if err := chromedp.Run(c.ctx, tracing.End()); err != nil {
		return fmt.Errorf("failed to end trace: %w", err)
	}
	select {
	case <-done:
	case <-time.After(traceCompleteTimeout):
		return fmt.Errorf("trace did not complete within %v", traceCompleteTimeout)
	}

	c.traceMu.Lock()
	events := c.traceEvents
	c.traceEvents = nil
	c.traceMu.Unlock()

	var buf bytes.Buffer
	buf.WriteString(`{"traceEvents":[`)
	buf.Write(bytes.Join(events, []byte(",")))
	buf.WriteString("]}\n")
	return AtomicWriteFile(path, buf.Bytes())
}

func (c *cdpContext) NewPage() (Page, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	if c.opts.VideoDir != "" {
		if err := c.page.startRecording(c.opts.VideoDir, c.opts.VideoSize); err != nil {
			return nil, fmt.Errorf("failed to start recording: %w", err)
		}
	}
	return c.page, nil
}

func (c *cdpContext) Close() error {
	if c.page != nil && !c.page.IsClosed() {
		return c.page.Close()
	}
	c.cancel()
	return nil
}

// cdpPage is a page target. Event callbacks arrive on chromedp's listener
// goroutine.
type cdpPage struct {
	ctx            context.Context
	cancel         context.CancelFunc
	defaultTimeout time.Duration
	slowMo         time.Duration

	mu              sync.Mutex
	closed          bool
	onConsole       []func(ConsoleMessage)
	onPageError     []func(error)
	onRequestFailed []func(FailedRequest)
	requests        map[network.RequestID]string
	responseWaiters []*responseWaiter
	video           *cdpVideo
}

type responseWaiter struct {
	substr string
	ch     chan *Response
}

func (p *cdpPage) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		msg := newCDPConsoleMessage(ev)
		for _, h := range p.handlers().console {
			h(msg)
		}
	case *runtime.EventExceptionThrown:
		err := exceptionError(ev.ExceptionDetails)
		for _, h := range p.handlers().pageError {
			h(err)
		}
	case *network.EventRequestWillBeSent:
		if ev.Request != nil {
			p.mu.Lock()
			p.requests[ev.RequestID] = ev.Request.URL
			p.mu.Unlock()
		}
	case *network.EventLoadingFailed:
		p.mu.Lock()
		url := p.requests[ev.RequestID]
		delete(p.requests, ev.RequestID)
		p.mu.Unlock()
		req := cdpFailedRequest{url: url, reason: ev.ErrorText}
		for _, h := range p.handlers().requestFailed {
			h(req)
		}
	case *network.EventLoadingFinished:
		p.mu.Lock()
		delete(p.requests, ev.RequestID)
		p.mu.Unlock()
	case *network.EventResponseReceived:
		if ev.Response != nil {
			p.notifyResponse(&Response{URL: ev.Response.URL, Status: int(ev.Response.Status)})
		}
	case *page.EventScreencastFrame:
		p.writeFrame(ev)
	}
}

type pageHandlers struct {
	console       []func(ConsoleMessage)
	pageError     []func(error)
	requestFailed []func(FailedRequest)
}

func (p *cdpPage) handlers() pageHandlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pageHandlers{
		console:       append([]func(ConsoleMessage){}, p.onConsole...),
		pageError:     append([]func(error){}, p.onPageError...),
		requestFailed: append([]func(FailedRequest){}, p.onRequestFailed...),
	}
}

func (p *cdpPage) notifyResponse(resp *Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.responseWaiters[:0]
	for _, w := range p.responseWaiters {
		if strings.Contains(resp.URL, w.substr) {
			w.ch <- resp
			continue
		}
		kept = append(kept, w)
	}
	p.responseWaiters = kept
}

func (p *cdpPage) removeResponseWaiter(w *responseWaiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, o := range p.responseWaiters {
		if o == w {
			p.responseWaiters = append(p.responseWaiters[:i], p.responseWaiters[i+1:]...)
			return
		}
	}
}

func (p *cdpPage) OnConsole(handler func(ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConsole = append(p.onConsole, handler)
}

func (p *cdpPage) OnPageError(handler func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPageError = append(p.onPageError, handler)
}

func (p *cdpPage) OnRequestFailed(handler func(FailedRequest)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRequestFailed = append(p.onRequestFailed, handler)
}

// run executes actions under a timeout, then honors slow-mo.
func (p *cdpPage) run(timeout time.Duration, actions ...chromedp.Action) error {
	if p.IsClosed() {
		return ErrPageClosed
	}
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	err := chromedp.Run(ctx, actions...)
	if p.slowMo > 0 {
		time.Sleep(p.slowMo)
	}
	return err
}

func (p *cdpPage) Goto(url string) error {
	return p.run(0,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *cdpPage) Click(selector string, timeout time.Duration) error {
	sel, by := cdpSelector(selector)
	return p.run(timeout,
		chromedp.WaitVisible(sel, by),
		chromedp.Click(sel, by),
	)
}

func (p *cdpPage) Fill(selector, value string, timeout time.Duration) error {
	sel, by := cdpSelector(selector)
	return p.run(timeout,
		chromedp.WaitVisible(sel, by),
		chromedp.Clear(sel, by),
		chromedp.SendKeys(sel, value, by),
	)
}

func (p *cdpPage) WaitVisible(selector string, timeout time.Duration) error {
	sel, by := cdpSelector(selector)
	return p.run(timeout, chromedp.WaitVisible(sel, by))
}

func (p *cdpPage) WaitHidden(selector string, timeout time.Duration) error {
	sel, by := cdpSelector(selector)
	return p.run(timeout, chromedp.WaitNotVisible(sel, by))
}

func (p *cdpPage) SelectOption(selector, value string, timeout time.Duration) error {
	sel, by := cdpSelector(selector)
	val, _ := json.Marshal(value)
	script := fmt.Sprintf(`(function(el) {
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value;
	})(%s)`, val, jsFirstElement(selector))
	var got string
	err := p.run(timeout,
		chromedp.WaitVisible(sel, by),
		chromedp.Evaluate(script, &got),
	)
	if err == nil && got != value {
		err = fmt.Errorf("option %q not available in %s", value, selector)
	}
	return err
}

func (p *cdpPage) Check(selector string, timeout time.Duration) error {
	sel, by := cdpSelector(selector)
	script := fmt.Sprintf(`(function(el) {
		if (!el.checked) el.click();
		return el.checked;
	})(%s)`, jsFirstElement(selector))
	var checked bool
	err := p.run(timeout,
		chromedp.WaitVisible(sel, by),
		chromedp.Evaluate(script, &checked),
	)
	if err == nil && !checked {
		err = fmt.Errorf("element did not become checked: %s", selector)
	}
	return err
}

func (p *cdpPage) Count(selector string) (int, error) {
	var n int
	err := p.run(0, chromedp.Evaluate(jsAllElements(selector)+".length", &n))
	return n, err
}

func (p *cdpPage) WaitForURL(substr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		if strings.Contains(p.URL(), substr) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("url %q does not contain %q: %w", p.URL(), substr, context.DeadlineExceeded)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (p *cdpPage) WaitForResponse(substr string, timeout time.Duration, action func() error) (*Response, error) {
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	w := &responseWaiter{substr: substr, ch: make(chan *Response, 1)}
	p.mu.Lock()
	p.responseWaiters = append(p.responseWaiters, w)
	p.mu.Unlock()
	defer p.removeResponseWaiter(w)

	if action != nil {
		if err := action(); err != nil {
			return nil, err
		}
	}

	select {
	case resp := <-w.ch:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no response matching %q: %w", substr, context.DeadlineExceeded)
	}
}

func (p *cdpPage) URL() string {
	var url string
	if err := p.run(5*time.Second, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

func (p *cdpPage) Screenshot(path string, fullPage bool) error {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(0, action); err != nil {
		return err
	}
	return AtomicWriteFile(path, buf)
}

func (p *cdpPage) Video() Video {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return nil
	}
	return p.video
}

func (p *cdpPage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || p.ctx.Err() != nil
}

func (p *cdpPage) Close() error {
	if p.IsClosed() {
		return nil
	}
	p.mu.Lock()
	video := p.video
	p.mu.Unlock()

	if video != nil {
		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
		_ = chromedp.Run(ctx, page.StopScreencast())
		cancel()
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	err := chromedp.Cancel(p.ctx)
	if video != nil {
		video.finish()
	}
	return err
}

func (p *cdpPage) startRecording(dir string, size Size) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, uuid.NewString()+".mjpeg")
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.video = &cdpVideo{path: path, file: f}
	p.mu.Unlock()

	start := page.StartScreencast().WithFormat(page.ScreencastFormatJpeg).WithQuality(80)
	if size.Width > 0 {
		start = start.WithMaxWidth(int64(size.Width)).WithMaxHeight(int64(size.Height))
	}
	return chromedp.Run(p.ctx, start)
}

func (p *cdpPage) writeFrame(ev *page.EventScreencastFrame) {
	p.mu.Lock()
	v := p.video
	p.mu.Unlock()
	if v != nil {
		if data, err := base64.StdEncoding.DecodeString(ev.Data); err == nil {
			v.write(data)
		}
	}

	// Acks must not run on the listener goroutine.
	sessionID := ev.SessionID
	go func() {
		_ = chromedp.Run(p.ctx, page.ScreencastFrameAck(sessionID))
	}()
}

// cdpVideo is a Motion-JPEG file of concatenated screencast frames.
type cdpVideo struct {
	path string

	mu     sync.Mutex
	file   *os.File
	frames int
}

func (v *cdpVideo) write(frame []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.file == nil {
		return
	}
	if _, err := v.file.Write(frame); err == nil {
		v.frames++
	}
}

func (v *cdpVideo) finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.file == nil {
		return
	}
	v.file.Close()
	v.file = nil
	if v.frames == 0 {
		os.Remove(v.path)
	}
}

func (v *cdpVideo) Path() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.file == nil && v.frames == 0 {
		return "", errors.New("no frames recorded")
	}
	return v.path, nil
}

// cdpConsoleMessage adapts a Runtime.consoleAPICalled event.
type cdpConsoleMessage struct {
	level string
	text  string
	loc   *SourceLocation
}

func newCDPConsoleMessage(ev *runtime.EventConsoleAPICalled) cdpConsoleMessage {
	msg := cdpConsoleMessage{level: string(ev.Type)}
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		parts = append(parts, remoteObjectText(arg))
	}
	msg.text = strings.Join(parts, " ")
	if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
		f := ev.StackTrace.CallFrames[0]
		msg.loc = &SourceLocation{URL: f.URL, Line: int(f.LineNumber), Column: int(f.ColumnNumber)}
	}
	return msg
}

func (m cdpConsoleMessage) Type() string              { return m.level }
func (m cdpConsoleMessage) Text() string              { return m.text }
func (m cdpConsoleMessage) Location() *SourceLocation { return m.loc }

func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal([]byte(obj.Value), &s); err == nil {
			return s
		}
		return string(obj.Value)
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

func exceptionError(details *runtime.ExceptionDetails) error {
	if details == nil {
		return errors.New("unknown exception")
	}
	if details.Exception != nil && details.Exception.Description != "" {
		return errors.New(details.Exception.Description)
	}
	return errors.New(details.Text)
}

type cdpFailedRequest struct {
	url    string
	reason string
}

func (r cdpFailedRequest) URL() string { return r.url }

func (r cdpFailedRequest) Failure() error {
	if r.reason == "" {
		return nil
	}
	return errors.New(r.reason)
}

var hasTextSelector = regexp.MustCompile(`^(.*?):has-text\((['"])(.*)['"]\)$`)

// jsAllElements translates a selector into a JS expression yielding an
// array of matching elements. Besides plain CSS it understands the
// Playwright forms used by the page objects: "text=..." and
// "css:has-text('...')".
func jsAllElements(selector string) string {
	if text, ok := strings.CutPrefix(selector, "text="); ok {
		t, _ := json.Marshal(text)
		return fmt.Sprintf(`Array.from(document.querySelectorAll('body *')).filter(e => e.childElementCount === 0 && e.textContent.includes(%s))`, t)
	}
	if m := hasTextSelector.FindStringSubmatch(selector); m != nil {
		css, _ := json.Marshal(m[1])
		t, _ := json.Marshal(m[3])
		return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).filter(e => e.textContent.includes(%s))`, css, t)
	}
	css, _ := json.Marshal(selector)
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, css)
}

// jsFirstElement is jsAllElements narrowed to the first match.
func jsFirstElement(selector string) string {
	return "(" + jsAllElements(selector) + ")[0]"
}

// isPlainCSS reports whether selector can go straight to querySelector.
func isPlainCSS(selector string) bool {
	return !strings.HasPrefix(selector, "text=") && !strings.Contains(selector, ":has-text(")
}

// cdpSelector picks the chromedp query for selector.
func cdpSelector(selector string) (string, chromedp.QueryOption) {
	if isPlainCSS(selector) {
		return selector, chromedp.ByQuery
	}
	return jsFirstElement(selector), chromedp.ByJSPath
}
