package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSAllElements(t *testing.T) {
	assert.Equal(t,
		`Array.from(document.querySelectorAll("#loginModal"))`,
		jsAllElements("#loginModal"))

	assert.Equal(t,
		`Array.from(document.querySelectorAll('body *')).filter(e => e.childElementCount === 0 && e.textContent.includes("快速登入"))`,
		jsAllElements("text=快速登入"))

	assert.Equal(t,
		`Array.from(document.querySelectorAll("#policyModal button")).filter(e => e.textContent.includes("我同意"))`,
		jsAllElements("#policyModal button:has-text('我同意')"))

	assert.Equal(t,
		`Array.from(document.querySelectorAll("a")).filter(e => e.textContent.includes("it's"))`,
		jsAllElements(`a:has-text("it's")`))
}

func TestJSFirstElement(t *testing.T) {
	assert.Equal(t, `(Array.from(document.querySelectorAll("input[name=\"q\"]")))[0]`, jsFirstElement(`input[name="q"]`))
}

func TestCDPSelector(t *testing.T) {
	sel, _ := cdpSelector("#carNumber")
	assert.Equal(t, "#carNumber", sel)
	assert.True(t, isPlainCSS("#carNumber"))

	sel, _ = cdpSelector(selQuickLoginButton)
	assert.Equal(t, jsFirstElement(selQuickLoginButton), sel)
	assert.False(t, isPlainCSS(selQuickLoginButton))
	assert.False(t, isPlainCSS(selHomeReadyText))
}

func TestSelectorsTranslate(t *testing.T) {
	// Every selector the page objects use must be expressible for chromedp.
	for _, sel := range []string{
		selHomeReadyText, selQuickLoginButton, selPolicyModal, selPolicyAgreeButton,
		selLoadingOverlay, selLoginModal, selEmailInput, selPasswordInput, selAgreeTerms,
		selLoginButton, selFooter, selFooterTicketsLink, selLoadingMask, selCarNumberInput,
		selSearchButton, selTicketCheckbox, selNoResult, selPayButton, selPaymentMethod,
		selInvoiceOption,
	} {
		js := jsAllElements(sel)
		assert.Contains(t, js, "document.querySelectorAll(", sel)
		assert.NotContains(t, js, ":has-text(", sel)
	}
}

func TestNewCDPConsoleMessage(t *testing.T) {
	msg := newCDPConsoleMessage(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeError,
		Args: []*runtime.RemoteObject{
			{Type: runtime.TypeString, Value: []byte(`"payment failed"`)},
			{Type: runtime.TypeNumber, Value: []byte(`402`)},
			{Type: runtime.TypeObject, Description: "Error: declined"},
			{Type: runtime.TypeUndefined},
		},
		StackTrace: &runtime.StackTrace{CallFrames: []*runtime.CallFrame{
			{URL: "https://qpktest.qparking.com.tw/js/main.js", LineNumber: 41, ColumnNumber: 7},
		}},
	})

	assert.Equal(t, "error", msg.Type())
	assert.Equal(t, "payment failed 402 Error: declined undefined", msg.Text())
	require.NotNil(t, msg.Location())
	assert.Equal(t, SourceLocation{URL: "https://qpktest.qparking.com.tw/js/main.js", Line: 41, Column: 7}, *msg.Location())

	bare := newCDPConsoleMessage(&runtime.EventConsoleAPICalled{Type: runtime.APITypeLog})
	assert.Equal(t, "", bare.Text())
	assert.Nil(t, bare.Location())
}

func TestExceptionError(t *testing.T) {
	assert.EqualError(t, exceptionError(nil), "unknown exception")
	assert.EqualError(t, exceptionError(&runtime.ExceptionDetails{Text: "Uncaught"}), "Uncaught")
	assert.EqualError(t, exceptionError(&runtime.ExceptionDetails{
		Text:      "Uncaught",
		Exception: &runtime.RemoteObject{Description: "ReferenceError: unreadCountURL is not defined"},
	}), "ReferenceError: unreadCountURL is not defined")
}

func TestCDPFailedRequest(t *testing.T) {
	r := cdpFailedRequest{url: "https://x/api", reason: "net::ERR_CONNECTION_RESET"}
	assert.Equal(t, "https://x/api", r.URL())
	assert.EqualError(t, r.Failure(), "net::ERR_CONNECTION_RESET")
	assert.Nil(t, cdpFailedRequest{url: "https://x"}.Failure())
}

func TestCDPVideo_EmptyRecordingRemoved(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "empty.mjpeg"))
	require.NoError(t, err)

	v := &cdpVideo{path: f.Name(), file: f}
	v.finish()

	_, err = v.Path()
	assert.Error(t, err)
	assert.False(t, fileExists(f.Name()))
}

func TestCDPVideo_FramesKept(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "rec.mjpeg"))
	require.NoError(t, err)

	v := &cdpVideo{path: f.Name(), file: f}
	v.write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	v.write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	v.finish()

	path, err := v.Path()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 8)
}

func TestChromedpFormats(t *testing.T) {
	d := &ChromedpDriver{}
	assert.Equal(t, "chromedp", d.Name())
	assert.Equal(t, ArtifactFormats{Trace: ".json", Screenshot: ".png", Video: ".mjpeg"}, d.Formats())
}

func TestCDPPage_WaitForResponseMatches(t *testing.T) {
	p := &cdpPage{ctx: context.Background()}

	resp, err := p.WaitForResponse("/Login/LoginApi", time.Second, func() error {
		go p.notifyResponse(&Response{URL: "https://x/Login/LoginApi", Status: 200})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Empty(t, p.responseWaiters)
}

func TestCDPPage_WaitForResponseDropsWaiter(t *testing.T) {
	p := &cdpPage{ctx: context.Background()}

	_, err := p.WaitForResponse("/Login/LoginApi", time.Second, func() error {
		return errors.New("click failed")
	})
	assert.EqualError(t, err, "click failed")
	assert.Empty(t, p.responseWaiters)

	_, err = p.WaitForResponse("/Login/LoginApi", 20*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, p.responseWaiters)

	// A late response with no waiter left must not block.
	p.notifyResponse(&Response{URL: "https://x/Login/LoginApi", Status: 200})
}

func TestCDPPage_CloseFinishesVideo(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "rec.mjpeg"))
	require.NoError(t, err)
	p := &cdpPage{ctx: context.Background(), video: &cdpVideo{path: f.Name(), file: f}}
	p.video.write([]byte{0xFF, 0xD8, 0xFF, 0xD9})

	_ = p.Close()

	assert.True(t, p.IsClosed())
	path, err := p.Video().Path()
	require.NoError(t, err)
	assert.True(t, fileExists(path))
	assert.NoError(t, p.Close())
}
