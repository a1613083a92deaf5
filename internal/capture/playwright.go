package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightConfig struct {
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

func DefaultPlaywrightConfig() PlaywrightConfig {
	return PlaywrightConfig{
		NavigationTimeout: 60 * time.Second,
		ActionTimeout:     30 * time.Second,
	}
}

type playwrightDriver struct {
	config PlaywrightConfig

	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	scope   playwright.Frame
	owned   bool
}

// InstallPlaywright downloads the Chromium bundle used by the playwright backend.
func InstallPlaywright() error {
	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	}); err != nil {
		return fmt.Errorf("failed to install playwright browsers: %w", err)
	}
	return nil
}

// NewPlaywrightLauncher returns a Launcher that starts a playwright Chromium
// or attaches to an existing browser over CDP.
func NewPlaywrightLauncher(config PlaywrightConfig) Launcher {
	return func(ctx context.Context, options LaunchOptions) (Driver, error) {
		return newPlaywrightDriver(ctx, config, options)
	}
}

func newPlaywrightDriver(ctx context.Context, config PlaywrightConfig, options LaunchOptions) (d *playwrightDriver, err error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d = &playwrightDriver{config: config, pw: pw}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	if options.ChromeDevtoolsProtocolURL == "" {
		launchOptions := playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(options.Headless),
			Args:     args(options),
		}
		if options.ExecutablePath != "" {
			launchOptions.ExecutablePath = playwright.String(options.ExecutablePath)
		}
		d.browser, err = pw.Chromium.Launch(launchOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		d.owned = true
	} else {
		d.browser, err = pw.Chromium.ConnectOverCDP(options.ChromeDevtoolsProtocolURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to browser via CDP at %s: %w", options.ChromeDevtoolsProtocolURL, err)
		}
	}

	contextOptions := playwright.BrowserNewContextOptions{}
	if options.UserAgent != "" {
		contextOptions.UserAgent = playwright.String(options.UserAgent)
	}
	if options.WindowWidth > 0 && options.WindowHeight > 0 {
		contextOptions.Viewport = &playwright.Size{
			Width:  options.WindowWidth,
			Height: options.WindowHeight,
		}
	}
	browserContext, err := d.browser.NewContext(contextOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	browserContext.SetDefaultTimeout(float64(config.ActionTimeout.Milliseconds()))

	d.page, err = browserContext.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	d.scope = d.page.MainFrame()

	return d, nil
}

// watch closes the page once ctx is done so that a pending playwright call
// returns instead of running into its own timeout. The returned func stops it.
func (d *playwrightDriver) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = d.page.Close()
	})
}

// interrupted prefers the context error over the failure it caused.
func interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (d *playwrightDriver) Navigate(ctx context.Context, url string) error {
	defer d.watch(ctx)()

	if _, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(d.config.NavigationTimeout.Milliseconds())),
	}); err != nil {
		return interrupted(ctx, fmt.Errorf("failed to navigate to %s: %w", url, err))
	}
	d.scope = d.page.MainFrame()
	return ctx.Err()
}

func (d *playwrightDriver) locator(loc Locator) playwright.Locator {
	return d.scope.Locator(string(loc))
}

func (d *playwrightDriver) nth(ctx context.Context, loc Locator, index int) (playwright.Locator, error) {
	l := d.locator(loc)
	count, err := l.Count()
	if err != nil {
		return nil, interrupted(ctx, fmt.Errorf("failed to count %s: %w", loc, err))
	}
	i, err := resolveIndex(index, count)
	if err != nil {
		return nil, fmt.Errorf("%s[%d]: %w", loc, index, err)
	}
	return l.Nth(i), nil
}

func (d *playwrightDriver) Count(ctx context.Context, loc Locator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := d.locator(loc).Count()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", loc, err)
	}
	return count, nil
}

func (d *playwrightDriver) Click(ctx context.Context, loc Locator, index int) error {
	defer d.watch(ctx)()

	l, err := d.nth(ctx, loc, index)
	if err != nil {
		return err
	}
	if err := l.Click(); err != nil {
		return interrupted(ctx, fmt.Errorf("failed to click %s: %w", loc, err))
	}
	return ctx.Err()
}

func (d *playwrightDriver) Fill(ctx context.Context, loc Locator, value string) error {
	defer d.watch(ctx)()

	l, err := d.nth(ctx, loc, 0)
	if err != nil {
		return err
	}
	if err := l.Fill(value); err != nil {
		return interrupted(ctx, fmt.Errorf("failed to fill %s: %w", loc, err))
	}
	return ctx.Err()
}

func (d *playwrightDriver) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	defer d.watch(ctx)()

	l, err := d.nth(ctx, loc, 0)
	if err != nil {
		return "", false, err
	}
	// Evaluated in the page so that a missing attribute is distinguishable from an empty one.
	v, err := l.Evaluate(`(e, name) => e.getAttribute(name)`, name)
	if err != nil {
		return "", false, interrupted(ctx, fmt.Errorf("failed to read %s of %s: %w", name, loc, err))
	}
	s, ok := v.(string)
	return s, ok, ctx.Err()
}

func (d *playwrightDriver) Enabled(ctx context.Context, loc Locator) (bool, error) {
	defer d.watch(ctx)()

	l, err := d.nth(ctx, loc, 0)
	if err != nil {
		return false, err
	}
	enabled, err := l.IsEnabled()
	if err != nil {
		return false, interrupted(ctx, fmt.Errorf("failed to check %s: %w", loc, err))
	}
	return enabled, ctx.Err()
}

func (d *playwrightDriver) EnterFrame(ctx context.Context, loc Locator) error {
	defer d.watch(ctx)()

	l, err := d.nth(ctx, loc, 0)
	if err != nil {
		return err
	}
	handle, err := l.ElementHandle()
	if err != nil {
		return interrupted(ctx, fmt.Errorf("failed to resolve frame %s: %w", loc, err))
	}
	frame, err := handle.ContentFrame()
	if err != nil {
		return interrupted(ctx, fmt.Errorf("failed to enter frame %s: %w", loc, err))
	}
	d.scope = frame
	return ctx.Err()
}

func (d *playwrightDriver) Evaluate(ctx context.Context, script string) error {
	defer d.watch(ctx)()

	if _, err := d.page.Evaluate(script); err != nil {
		return interrupted(ctx, fmt.Errorf("failed to evaluate script: %w", err))
	}
	return ctx.Err()
}

func (d *playwrightDriver) PrintPDF(ctx context.Context, options PrintOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer d.watch(ctx)()

	data, err := d.page.PDF(playwright.PagePdfOptions{
		Landscape:           playwright.Bool(options.Landscape),
		DisplayHeaderFooter: playwright.Bool(options.HeaderFooter),
		PrintBackground:     playwright.Bool(options.PrintBackground),
	})
	if err != nil {
		return nil, interrupted(ctx, fmt.Errorf("failed to print page: %w", err))
	}
	return data, nil
}

func (d *playwrightDriver) Screenshot(ctx context.Context, loc Locator) ([]byte, error) {
	defer d.watch(ctx)()

	l, err := d.nth(ctx, loc, 0)
	if err != nil {
		return nil, err
	}
	data, err := l.Screenshot(playwright.LocatorScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, interrupted(ctx, fmt.Errorf("failed to take screenshot: %w", err))
	}
	return data, ctx.Err()
}

func (d *playwrightDriver) HTML(ctx context.Context) (string, error) {
	defer d.watch(ctx)()

	content, err := d.scope.Content()
	if err != nil {
		return "", interrupted(ctx, fmt.Errorf("failed to get HTML content: %w", err))
	}
	return content, ctx.Err()
}

func (d *playwrightDriver) Title(ctx context.Context) (string, error) {
	defer d.watch(ctx)()

	title, err := d.page.Title()
	if err != nil {
		return "", interrupted(ctx, fmt.Errorf("failed to get title: %w", err))
	}
	return title, ctx.Err()
}

func (d *playwrightDriver) Close() error {
	var firstErr error
	if d.page != nil && !d.page.IsClosed() {
		if err := d.page.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.browser != nil && d.owned {
		if err := d.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Driver = (*playwrightDriver)(nil)
