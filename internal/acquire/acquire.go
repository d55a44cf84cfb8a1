package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/pfrederiksen/drf-pp/internal/browser"
	"github.com/pfrederiksen/drf-pp/internal/logger"
	"github.com/pfrederiksen/drf-pp/internal/metrics"
	"github.com/pfrederiksen/drf-pp/internal/racedate"
	"github.com/pfrederiksen/drf-pp/internal/storage"
)

const (
	LoginURL        = "https://www.drf.com/login?retUrl=https://www.drf.com/"
	PDFName         = "DRFPPS.pdf"
	DownloadTimeout = 2 * time.Minute

	handicappingLink = "Handicapping & PPs"
	programLinkXPath = "//a[contains(@href, 'drp-program')]"
	accessXPath      = "//button[text()='Access']"
	captchaMessage   = "Complete the CAPTCHA in the browser, then press Enter to continue..."
)

// Step names used in logs, metrics and run reports
const (
	StepLaunch       = "launch"
	StepLoginPage    = "login_page"
	StepCredentials  = "credentials"
	StepCaptcha      = "captcha"
	StepHandicapping = "handicapping"
	StepProgram      = "program"
	StepCalendar     = "calendar"
	StepAccess       = "access"
	StepLocate       = "locate"
	StepDownload     = "download"
	StepSave         = "save"
)

// ErrMissingCredentials is returned when the username or password is empty
var ErrMissingCredentials = errors.New("username and password are required")

// Credentials for the DRF account
type Credentials struct {
	Username string
	Password string
}

// Launcher opens a new browser session
type Launcher func(ctx context.Context) (browser.Browser, error)

// Acquirer downloads the daily racing program PDF through a browser session
type Acquirer struct {
	launch   Launcher
	prompter Prompter
	client   *http.Client

	// LoginURL is where the session starts
	LoginURL string
	// Metrics, if set, receives step durations and the outcome
	Metrics *metrics.Metrics
	// OnStep, if set, is called after every step with its duration and error
	OnStep func(step string, d time.Duration, err error)
}

// New creates an Acquirer. The operator is asked through prompter to solve
// the login CAPTCHA.
func New(launch Launcher, prompter Prompter) *Acquirer {
	return &Acquirer{
		launch:   launch,
		prompter: prompter,
		client: &http.Client{
			Timeout: DownloadTimeout,
		},
		LoginURL: LoginURL,
	}
}

// WithHTTPClient replaces the client used for the PDF download
func (a *Acquirer) WithHTTPClient(c *http.Client) *Acquirer {
	a.client = c
	return a
}

// Acquire logs in, navigates to the program for date and writes the PDF to
// <downloadDir>/DRFPPS.pdf. It returns the written path. On any failure
// nothing is written and the path is empty. The browser session is closed
// before Acquire returns.
func (a *Acquirer) Acquire(ctx context.Context, creds Credentials, date time.Time, downloadDir string) (path string, err error) {
	defer func() {
		if err != nil {
			a.Metrics.RecordAcquisition("failure")
			logger.Error("Acquisition failed", logger.Fields{"date": date.Format("2006-01-02")}, err)
			return
		}
		a.Metrics.RecordAcquisition("success")
	}()

	if creds.Username == "" || creds.Password == "" {
		return "", ErrMissingCredentials
	}

	var b browser.Browser
	err = a.step(ctx, StepLaunch, func(ctx context.Context) error {
		var err error
		b, err = a.launch(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			logger.Warn("Closing browser", logger.Fields{"error": cerr.Error()})
		}
	}()

	return a.run(ctx, b, creds, date, downloadDir)
}

func (a *Acquirer) run(ctx context.Context, b browser.Browser, creds Credentials, date time.Time, downloadDir string) (string, error) {
	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{StepLoginPage, func(ctx context.Context) error {
			return b.Navigate(ctx, a.LoginURL)
		}},
		{StepCredentials, func(ctx context.Context) error {
			if err := b.SendKeys(ctx, browser.ByID("email"), creds.Username); err != nil {
				return err
			}
			return b.SendKeys(ctx, browser.ByID("password"), creds.Password)
		}},
		{StepCaptcha, func(ctx context.Context) error {
			return a.prompter.Confirm(ctx, captchaMessage)
		}},
		{StepHandicapping, func(ctx context.Context) error {
			return b.Click(ctx, browser.ByLinkText(handicappingLink))
		}},
		{StepProgram, func(ctx context.Context) error {
			return b.Click(ctx, browser.ByXPath(programLinkXPath))
		}},
		{StepCalendar, func(ctx context.Context) error {
			return selectDay(ctx, b, date)
		}},
		{StepAccess, func(ctx context.Context) error {
			return b.Click(ctx, browser.ByXPath(accessXPath))
		}},
	}
	for _, s := range steps {
		if err := a.step(ctx, s.name, s.fn); err != nil {
			return "", err
		}
	}

	var pdfURL string
	err := a.step(ctx, StepLocate, func(ctx context.Context) error {
		var err error
		pdfURL, err = b.CurrentURL(ctx)
		return err
	})
	if err != nil {
		return "", err
	}

	var data []byte
	err = a.step(ctx, StepDownload, func(ctx context.Context) error {
		cookies, err := b.Cookies(ctx, pdfURL)
		if err != nil {
			return err
		}
		data, err = fetchPDF(ctx, a.client, pdfURL, cookies)
		return err
	})
	if err != nil {
		return "", err
	}
	a.Metrics.SetDownloadBytes(len(data))

	dest := filepath.Join(downloadDir, PDFName)
	err = a.step(ctx, StepSave, func(ctx context.Context) error {
		expanded, err := storage.ExpandPath(dest)
		if err != nil {
			return err
		}
		dest = expanded
		return storage.WriteArtifact(dest, data)
	})
	if err != nil {
		return "", err
	}

	logger.Info("Program downloaded", logger.Fields{
		"path":  dest,
		"bytes": len(data),
		"date":  date.Format("2006-01-02"),
	})
	return dest, nil
}

// selectDay clicks the calendar cell for date, disambiguating when the
// widget shows more than one month
func selectDay(ctx context.Context, b browser.Browser, date time.Time) error {
	html, err := b.HTML(ctx)
	if err != nil {
		return err
	}
	sel, err := DaySelector(html, date)
	if err != nil {
		return err
	}
	logger.Debug("Selecting calendar day", logger.Fields{
		"day":      racedate.DayLabel(date),
		"selector": sel.String(),
	})
	return b.Click(ctx, sel)
}

func (a *Acquirer) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	logger.Debug("Step started", logger.Fields{"step": name})
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	a.Metrics.ObserveStep(name, elapsed, err)
	if a.OnStep != nil {
		a.OnStep(name, elapsed, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	logger.Debug("Step finished", logger.Fields{"step": name, "elapsed": elapsed.String()})
	return nil
}
