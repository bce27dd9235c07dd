package main

import (
	"errors"
	"fmt"
	"time"
)

// Driver launches browsers and hands out isolated browsing contexts.
type Driver interface {
	Name() string
	Formats() ArtifactFormats
	NewContext(opts ContextOptions) (BrowserContext, error)
	Close() error
}

// BrowserContext is a cookie/storage-isolated session with its own trace
// and video recording.
type BrowserContext interface {
	StartTrace(opts TraceOptions) error
	StopTrace(path string) error
	NewPage() (Page, error)
	Close() error
}

// Page is the subset of page automation the suite relies on.
type Page interface {
	Goto(url string) error
	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	WaitHidden(selector string, timeout time.Duration) error
	SelectOption(selector, value string, timeout time.Duration) error
	Check(selector string, timeout time.Duration) error
	Count(selector string) (int, error)
	WaitForURL(substr string, timeout time.Duration) error
	// WaitForResponse runs action and waits for the first response whose
	// URL contains substr.
	WaitForResponse(substr string, timeout time.Duration, action func() error) (*Response, error)
	URL() string

	OnConsole(handler func(ConsoleMessage))
	OnPageError(handler func(error))
	OnRequestFailed(handler func(FailedRequest))

	Screenshot(path string, fullPage bool) error
	// Video returns nil when the context is not recording.
	Video() Video
	IsClosed() bool
	Close() error
}

// Video is a recording whose file may only be known after the context closes.
type Video interface {
	Path() (string, error)
}

// ConsoleMessage is a console API call observed on a page.
type ConsoleMessage interface {
	Type() string
	Text() string
	// Location returns nil when the source location is unavailable.
	Location() *SourceLocation
}

// FailedRequest is a network request that did not complete.
type FailedRequest interface {
	URL() string
	// Failure returns the failure reason; nil when the engine reports none.
	Failure() error
}

// SourceLocation points at the script position that produced a console message.
type SourceLocation struct {
	URL    string
	Line   int
	Column int
}

// Response is the part of an HTTP response the page objects inspect.
type Response struct {
	URL    string
	Status int
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// ArtifactFormats lists the file extensions a driver produces.
type ArtifactFormats struct {
	Trace      string
	Screenshot string
	Video      string
}

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  int
	Height int
}

// ContextOptions configures a new browsing context.
type ContextOptions struct {
	Viewport   Size
	Locale     string
	TimezoneID string
	// VideoDir enables recording into the given scratch directory.
	VideoDir   string
	VideoSize  Size
	InitScript string
	// DefaultTimeout applies to page operations called with a zero timeout.
	DefaultTimeout time.Duration
}

// TraceOptions selects what a trace captures.
type TraceOptions struct {
	Screenshots bool
	Snapshots   bool
	Sources     bool
}

// ErrPageClosed is returned by page operations after Close.
var ErrPageClosed = errors.New("page is closed")

// WaitError is a hard test failure: an expected UI state or network
// response did not show up within its timeout.
type WaitError struct {
	What    string
	Timeout time.Duration
	Err     error
}

func (e *WaitError) Error() string {
	msg := fmt.Sprintf("timed out after %v waiting for %s", e.Timeout, e.What)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// NewDriver launches the named driver ("playwright" or "chromedp").
func NewDriver(name string, opts LaunchOptions) (Driver, error) {
	switch name {
	case "", "playwright":
		return NewPlaywrightDriver(opts)
	case "chromedp":
		return NewChromedpDriver(opts)
	default:
		return nil, fmt.Errorf("unknown driver: %s (expected playwright or chromedp)", name)
	}
}

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	Headless       bool
	SlowMo         time.Duration
	ExecutablePath string
}
