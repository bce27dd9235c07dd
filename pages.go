package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	// readyTimeout bounds page-ready and API waits.
	readyTimeout = 15 * time.Second
	// elementTimeout bounds waits on individual controls.
	elementTimeout = 10 * time.Second
)

// basePage holds the operations every page object shares. Waits that time
// out come back as *WaitError naming what was awaited.
type basePage struct {
	page    Page
	baseURL string
}

func (b *basePage) goTo(path string) error {
	url := b.baseURL + path
	if err := b.page.Goto(url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

func (b *basePage) waitVisible(selector, what string, timeout time.Duration) error {
	return waitErr(b.page.WaitVisible(selector, timeout), what, timeout)
}

func (b *basePage) waitHidden(selector, what string, timeout time.Duration) error {
	return waitErr(b.page.WaitHidden(selector, timeout), what, timeout)
}

func (b *basePage) click(selector, what string, timeout time.Duration) error {
	return waitErr(b.page.Click(selector, timeout), what, timeout)
}

func (b *basePage) fill(selector, value, what string, timeout time.Duration) error {
	return waitErr(b.page.Fill(selector, value, timeout), what, timeout)
}

func (b *basePage) check(selector, what string, timeout time.Duration) error {
	return waitErr(b.page.Check(selector, timeout), what, timeout)
}

func (b *basePage) selectOption(selector, value, what string, timeout time.Duration) error {
	return waitErr(b.page.SelectOption(selector, value, timeout), what, timeout)
}

// waitGone waits for a loading indicator to disappear if one is present.
// It never fails: an indicator that lingers is left for the next step to
// trip over.
func (b *basePage) waitGone(selector string, timeout time.Duration) {
	n, err := b.page.Count(selector)
	if err != nil || n == 0 {
		return
	}
	_ = b.page.WaitHidden(selector, timeout)
}

func (b *basePage) assertURLContains(substr string, timeout time.Duration) error {
	err := b.page.WaitForURL(substr, timeout)
	return waitErr(err, fmt.Sprintf("URL containing %q (at %s)", substr, b.page.URL()), timeout)
}

// waitErr turns a driver timeout into a *WaitError and wraps anything else.
func waitErr(err error, what string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return &WaitError{What: what, Timeout: timeout, Err: err}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
