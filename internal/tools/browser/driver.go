package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Driver is the page-fetching port. The tool depends only on this;
// the default implementation drives a headless Chromium via
// Playwright.
type Driver interface {
	FetchHTML(ctx context.Context, url string, timeout time.Duration) (string, error)
	Screenshot(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
	Close() error
}

// PlaywrightDriver renders pages in a headless browser. The browser
// process is launched lazily on first use and shared across calls.
type PlaywrightDriver struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightDriver creates an unstarted driver.
func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{}
}

func (d *PlaywrightDriver) ensure() (playwright.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return d.browser, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	d.pw = pw
	d.browser = browser
	return browser, nil
}

func (d *PlaywrightDriver) openPage(url string, timeout time.Duration) (playwright.Page, error) {
	browser, err := d.ensure()
	if err != nil {
		return nil, err
	}
	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	_, err = page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	return page, nil
}

func (d *PlaywrightDriver) FetchHTML(_ context.Context, url string, timeout time.Duration) (string, error) {
	page, err := d.openPage(url, timeout)
	if err != nil {
		return "", err
	}
	defer page.Close()
	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return html, nil
}

func (d *PlaywrightDriver) Screenshot(_ context.Context, url string, timeout time.Duration) ([]byte, error) {
	page, err := d.openPage(url, timeout)
	if err != nil {
		return nil, err
	}
	defer page.Close()
	shot, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return shot, nil
}

// Close shuts down the shared browser process.
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		d.browser.Close()
		d.browser = nil
	}
	if d.pw != nil {
		err := d.pw.Stop()
		d.pw = nil
		return err
	}
	return nil
}
