package acquire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/drf-pp/internal/browser"
)

const calendarHTML = `<html><body>
<div class="picker"><h3>December 2024</h3>
<span>1</span><span>13</span><span>14</span><span>15</span>
</div></body></html>`

// fakeBrowser records calls and fails the first call whose action matches failOn
type fakeBrowser struct {
	url     string
	html    string
	cookies []*http.Cookie
	failOn  string

	actions []string
	typed   map[string]string
	closes  int
}

var errInjected = errors.New("injected failure")

func (f *fakeBrowser) act(action string) error {
	f.actions = append(f.actions, action)
	if f.failOn != "" && strings.HasPrefix(action, f.failOn) {
		return errInjected
	}
	return nil
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	return f.act("navigate " + url)
}

func (f *fakeBrowser) SendKeys(_ context.Context, sel browser.Selector, text string) error {
	if f.typed == nil {
		f.typed = make(map[string]string)
	}
	f.typed[sel.Value] = text
	return f.act("type " + sel.Value)
}

func (f *fakeBrowser) Click(_ context.Context, sel browser.Selector) error {
	return f.act("click " + sel.XPath())
}

func (f *fakeBrowser) CurrentURL(context.Context) (string, error) {
	return f.url, f.act("url")
}

func (f *fakeBrowser) HTML(context.Context) (string, error) {
	return f.html, f.act("html")
}

func (f *fakeBrowser) Cookies(context.Context, string) ([]*http.Cookie, error) {
	return f.cookies, f.act("cookies")
}

func (f *fakeBrowser) Close() error {
	f.closes++
	return nil
}

type fakePrompter struct {
	err   error
	calls int
}

func (p *fakePrompter) Confirm(context.Context, string) error {
	p.calls++
	return p.err
}

func pdfServer(t *testing.T, status int, contentType string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			http.Error(w, "bad agent", http.StatusForbidden)
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "s3cr3t" {
			http.Error(w, "login required", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		w.Write([]byte("%PDF-1.4 program"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFake(url string) *fakeBrowser {
	return &fakeBrowser{
		url:     url,
		html:    calendarHTML,
		cookies: []*http.Cookie{{Name: "session", Value: "s3cr3t"}},
	}
}

func newAcquirer(b *fakeBrowser, p Prompter) *Acquirer {
	return New(func(context.Context) (browser.Browser, error) { return b, nil }, p)
}

var (
	testDate  = time.Date(2024, 12, 14, 0, 0, 0, 0, time.UTC)
	testCreds = Credentials{Username: "user@example.com", Password: "pw"}
)

func TestAcquireSuccess(t *testing.T) {
	srv := pdfServer(t, http.StatusOK, "application/pdf")
	b := newFake(srv.URL + "/program.pdf")
	p := &fakePrompter{}
	dir := filepath.Join(t.TempDir(), "programs")

	var steps []string
	a := newAcquirer(b, p).WithHTTPClient(srv.Client())
	a.OnStep = func(step string, _ time.Duration, err error) {
		assert.NoError(t, err)
		steps = append(steps, step)
	}

	path, err := a.Acquire(context.Background(), testCreds, testDate, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, PDFName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 program", string(data))

	assert.Equal(t, 1, b.closes)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "user@example.com", b.typed["email"])
	assert.Equal(t, "pw", b.typed["password"])
	assert.Equal(t, []string{
		"navigate " + LoginURL,
		"type email",
		"type password",
		"click //a[normalize-space(.)='Handicapping & PPs']",
		"click " + programLinkXPath,
		"html",
		"click //span[text()='14']",
		"click " + accessXPath,
		"url",
		"cookies",
	}, b.actions)
	assert.Equal(t, []string{
		StepLaunch, StepLoginPage, StepCredentials, StepCaptcha, StepHandicapping,
		StepProgram, StepCalendar, StepAccess, StepLocate, StepDownload, StepSave,
	}, steps)
}

func TestAcquireClosesBrowserOnEveryFailure(t *testing.T) {
	srv := pdfServer(t, http.StatusOK, "application/pdf")

	failures := []struct {
		name     string
		failOn   string
		wantStep string
	}{
		{"login page", "navigate", StepLoginPage},
		{"email", "type email", StepCredentials},
		{"password", "type password", StepCredentials},
		{"handicapping link", "click //a[normalize", StepHandicapping},
		{"program link", "click " + programLinkXPath, StepProgram},
		{"calendar html", "html", StepCalendar},
		{"calendar click", "click //span", StepCalendar},
		{"access button", "click " + accessXPath, StepAccess},
		{"current url", "url", StepLocate},
		{"cookies", "cookies", StepDownload},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			b := newFake(srv.URL)
			b.failOn = tt.failOn
			dir := t.TempDir()

			path, err := newAcquirer(b, &fakePrompter{}).Acquire(context.Background(), testCreds, testDate, dir)
			require.ErrorIs(t, err, errInjected)
			assert.Contains(t, err.Error(), tt.wantStep)
			assert.Empty(t, path)
			assert.Equal(t, 1, b.closes)
			assert.NoFileExists(t, filepath.Join(dir, PDFName))
		})
	}
}

func TestAcquirePromptFailure(t *testing.T) {
	b := newFake("http://unused")
	p := &fakePrompter{err: ErrNoOperator}

	path, err := newAcquirer(b, p).Acquire(context.Background(), testCreds, testDate, t.TempDir())
	require.ErrorIs(t, err, ErrNoOperator)
	assert.Empty(t, path)
	assert.Equal(t, 1, b.closes)
	assert.Equal(t, []string{"navigate " + LoginURL, "type email", "type password"}, b.actions)
}

func TestAcquireLaunchFailure(t *testing.T) {
	a := New(func(context.Context) (browser.Browser, error) {
		return nil, errInjected
	}, &fakePrompter{})

	path, err := a.Acquire(context.Background(), testCreds, testDate, t.TempDir())
	require.ErrorIs(t, err, errInjected)
	assert.Contains(t, err.Error(), StepLaunch)
	assert.Empty(t, path)
}

func TestAcquireMissingCredentials(t *testing.T) {
	launched := false
	a := New(func(context.Context) (browser.Browser, error) {
		launched = true
		return newFake(""), nil
	}, &fakePrompter{})

	_, err := a.Acquire(context.Background(), Credentials{Username: "u"}, testDate, t.TempDir())
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.False(t, launched)
}

func TestAcquireRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		wantErr     error
	}{
		{"not found", http.StatusNotFound, "application/pdf", ErrBadStatus},
		{"server error", http.StatusInternalServerError, "application/pdf", ErrBadStatus},
		{"html login page", http.StatusOK, "text/html; charset=utf-8", ErrNotPDF},
		{"octet stream", http.StatusOK, "application/octet-stream", ErrNotPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := pdfServer(t, tt.status, tt.contentType)
			b := newFake(srv.URL)
			dir := t.TempDir()

			path, err := newAcquirer(b, &fakePrompter{}).Acquire(context.Background(), testCreds, testDate, dir)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, path)
			assert.Equal(t, 1, b.closes)
			assert.NoFileExists(t, filepath.Join(dir, PDFName))
		})
	}
}

func TestAcquireOverwritesPreviousPDF(t *testing.T) {
	srv := pdfServer(t, http.StatusOK, "application/pdf")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PDFName), []byte("old program, longer than the new one"), 0644))

	path, err := newAcquirer(newFake(srv.URL), &fakePrompter{}).Acquire(context.Background(), testCreds, testDate, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 program", string(data))
}

func TestAcquireCancelledContext(t *testing.T) {
	b := newFake("http://unused")
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakePrompter{}
	a := newAcquirer(b, p)
	a.OnStep = func(step string, _ time.Duration, _ error) {
		if step == StepCredentials {
			cancel()
		}
	}

	path, err := a.Acquire(ctx, testCreds, testDate, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, path)
	assert.Equal(t, 0, p.calls)
	assert.Equal(t, 1, b.closes)
}

func TestFetchPDFAcceptsParameters(t *testing.T) {
	srv := pdfServer(t, http.StatusOK, "application/pdf; name=DRFPPS.pdf")
	data, err := fetchPDF(context.Background(), srv.Client(), srv.URL,
		[]*http.Cookie{{Name: "session", Value: "s3cr3t"}})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestFetchPDFRejectsOversizedBody(t *testing.T) {
	srv := pdfServer(t, http.StatusOK, "application/pdf")
	orig := maxPDFBytes
	maxPDFBytes = 4
	t.Cleanup(func() { maxPDFBytes = orig })

	_, err := fetchPDF(context.Background(), srv.Client(), srv.URL,
		[]*http.Cookie{{Name: "session", Value: "s3cr3t"}})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchPDFWithoutCookies(t *testing.T) {
	srv := pdfServer(t, http.StatusOK, "application/pdf")
	_, err := fetchPDF(context.Background(), srv.Client(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrBadStatus)
}
