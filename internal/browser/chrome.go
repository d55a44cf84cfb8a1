package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/pfrederiksen/drf-pp/internal/logger"
)

// DefaultStepTimeout bounds each wait when Options.StepTimeout is zero
const DefaultStepTimeout = 10 * time.Second

// Options configures a Chrome session
type Options struct {
	ExecPath    string // empty uses chromedp's lookup
	Headless    bool
	StepTimeout time.Duration
}

// Chrome is a Browser driving a local Chrome over the DevTools protocol
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Launch starts Chrome and opens a blank tab. The returned session must be
// closed by the caller.
func Launch(ctx context.Context, opts Options) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-popup-blocking", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	// The session outlives individual calls, so it is rooted in a
	// background context; ctx only bounds startup.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		timeout:     opts.StepTimeout,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultStepTimeout
	}

	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	logger.Debug("Chrome session started", logger.Fields{
		"headless": opts.Headless,
		"timeout":  c.timeout.String(),
	})
	return c, nil
}

// run executes actions under the step timeout and the caller's ctx
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(stepCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func query(sel Selector) (string, chromedp.QueryOption) {
	if sel.Kind == KindID {
		return "#" + sel.Value, chromedp.ByID
	}
	return sel.XPath(), chromedp.BySearch
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) SendKeys(ctx context.Context, sel Selector, text string) error {
	q, by := query(sel)
	err := c.run(ctx,
		chromedp.WaitVisible(q, by),
		chromedp.SendKeys(q, text, by),
	)
	if err != nil {
		return fmt.Errorf("typing into %s: %w", sel, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, sel Selector) error {
	q, by := query(sel)
	err := c.run(ctx,
		chromedp.WaitVisible(q, by),
		chromedp.Click(q, by),
	)
	if err != nil {
		return fmt.Errorf("clicking %s: %w", sel, err)
	}
	return nil
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return html, nil
}

func (c *Chrome) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithUrls([]string{url}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	return convertCookies(cookies), nil
}

func convertCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// Close shuts down the tab and the Chrome process
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = chromedp.Cancel(c.ctx)
		c.cancel()
		c.allocCancel()
		logger.Debug("Chrome session closed", nil)
	})
	return c.closeErr
}
