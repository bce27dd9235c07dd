package main

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	// siteReadyTimeout bounds how long a run waits for the site before
	// launching a browser.
	siteReadyTimeout  = 30 * time.Second
	siteProbeInterval = 500 * time.Millisecond
	// siteProbePath is the first page every test opens.
	siteProbePath = "/visitor"
)

// SiteProbe checks that the site under test is answering.
type SiteProbe struct {
	baseURL    string
	httpClient *http.Client
	interval   time.Duration
}

func NewSiteProbe(baseURL string) *SiteProbe {
	return &SiteProbe{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		interval:   siteProbeInterval,
	}
}

// URL is the address probed.
func (p *SiteProbe) URL() string {
	return p.baseURL + siteProbePath
}

// Check makes one request. Any status below 500 counts as up: the visitor
// page may redirect or ask for a login, which still means the app serves.
func (p *SiteProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(), nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s returned status %d", p.URL(), resp.StatusCode)
	}
	return nil
}

// WaitReady polls until the site answers or timeout elapses.
func (p *SiteProbe) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = p.Check(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("site not ready after %v (%s): %w", timeout, p.URL(), lastErr)
		case <-ticker.C:
		}
	}
}
