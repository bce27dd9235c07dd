package main

import (
	"fmt"
	"time"
)

// loginAPIPath is the endpoint the login modal posts to.
const loginAPIPath = "/Login/LoginApi"

// LoginPage drives the visitor entry page and its quick-login modal.
type LoginPage struct {
	basePage
	// LastResponse is the most recent login API response, if any.
	LastResponse *Response

	settle func()
}

func NewLoginPage(page Page, baseURL string) *LoginPage {
	return &LoginPage{
		basePage: basePage{page: page, baseURL: baseURL},
		settle:   func() { time.Sleep(300 * time.Millisecond) },
	}
}

// Navigate opens /visitor and waits for it to become interactive.
func (p *LoginPage) Navigate() error {
	if err := p.goTo("/visitor"); err != nil {
		return err
	}
	p.WaitVisitorReady(readyTimeout)
	return nil
}

// WaitVisitorReady waits for the quick-login button, falling back to its
// label text, then for any loading overlay to clear. A page that never
// settles is not an error here; the next interaction reports it.
func (p *LoginPage) WaitVisitorReady(timeout time.Duration) {
	if err := p.page.WaitVisible(selQuickLoginButton, timeout); err != nil {
		_ = p.page.WaitVisible(selHomeReadyText, 5*time.Second)
	}
	p.waitGone(selLoadingOverlay, 8*time.Second)
}

// WaitHomeReady waits for the quick-login label.
func (p *LoginPage) WaitHomeReady(timeout time.Duration) error {
	return p.waitVisible(selHomeReadyText, "home page (快速登入)", timeout)
}

// OpenLoginModal opens quick login and accepts the privacy policy.
func (p *LoginPage) OpenLoginModal() error {
	if err := p.click(selQuickLoginButton, "quick login button", elementTimeout); err != nil {
		return err
	}
	if err := p.waitVisible(selPolicyModal, "policy modal", elementTimeout); err != nil {
		return err
	}
	if err := p.click(selPolicyAgreeButton, "policy agree button", elementTimeout); err != nil {
		return err
	}
	return p.waitVisible(selLoginModal, "login modal", elementTimeout)
}

func (p *LoginPage) EnterEmail(email string) error {
	return p.fill(selEmailInput, email, "email input", elementTimeout)
}

func (p *LoginPage) EnterPassword(password string) error {
	return p.fill(selPasswordInput, password, "password input", elementTimeout)
}

func (p *LoginPage) AgreeTerms() error {
	return p.check(selAgreeTerms, "member terms checkbox", elementTimeout)
}

// SubmitAndWait clicks login and waits for the login API to answer.
func (p *LoginPage) SubmitAndWait(timeout time.Duration) (*Response, error) {
	p.LastResponse = nil
	resp, err := p.page.WaitForResponse(loginAPIPath, timeout, func() error {
		return p.page.Click(selLoginButton, elementTimeout)
	})
	if err != nil {
		return nil, waitErr(err, fmt.Sprintf("login API response (%s)", loginAPIPath), timeout)
	}
	p.LastResponse = resp
	return resp, nil
}

// Login runs the whole modal flow: open, fill credentials, agree, submit.
func (p *LoginPage) Login(email, password string) error {
	if err := p.WaitHomeReady(readyTimeout); err != nil {
		return err
	}
	if err := p.OpenLoginModal(); err != nil {
		return err
	}
	if err := p.EnterEmail(email); err != nil {
		return err
	}
	if err := p.EnterPassword(password); err != nil {
		return err
	}
	if err := p.AgreeTerms(); err != nil {
		return err
	}
	p.settle()
	if _, err := p.SubmitAndWait(readyTimeout); err != nil {
		return err
	}
	_ = p.page.WaitHidden(selLoginModal, readyTimeout)
	return nil
}

// AssertLoginSuccess checks the API answered OK and the modal closed.
func (p *LoginPage) AssertLoginSuccess() error {
	if p.LastResponse != nil && !p.LastResponse.OK() {
		return fmt.Errorf("login API failed: status=%d", p.LastResponse.Status)
	}
	return p.waitHidden(selLoginModal, "login modal to close", readyTimeout)
}
