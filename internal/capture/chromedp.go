package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

type chromedpDriver struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// frame is the iframe node queries are scoped to, nil for the top document.
	frame *cdp.Node
}

// NewChromedpLauncher returns a Launcher backed by a chromedp-controlled Chrome.
func NewChromedpLauncher() Launcher {
	return func(ctx context.Context, options LaunchOptions) (Driver, error) {
		return newChromedpDriver(ctx, options)
	}
}

// flags converts "--name[=value]" switches into allocator options.
func flags(switches []string) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(switches))
	for _, s := range switches {
		name, value, found := strings.Cut(strings.TrimLeft(s, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func newChromedpDriver(ctx context.Context, options LaunchOptions) (*chromedpDriver, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if options.ChromeDevtoolsProtocolURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), options.ChromeDevtoolsProtocolURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], flags(args(options))...)
		allocOpts = append(allocOpts, chromedp.Flag("headless", options.Headless))
		if options.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(options.UserAgent))
		}
		if options.WindowWidth > 0 && options.WindowHeight > 0 {
			allocOpts = append(allocOpts, chromedp.WindowSize(options.WindowWidth, options.WindowHeight))
		}
		if options.ExecutablePath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(options.ExecutablePath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run owns the browser process and its event loops, so it gets
	// browserCtx itself. ctx only aborts the launch.
	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	if !stop() || err != nil {
		browserCancel()
		allocCancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &chromedpDriver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// runIn runs actions on an already started browser tab while honouring
// cancellation of ctx.
func runIn(ctx context.Context, browserCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *chromedpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	return runIn(ctx, c.browserCtx, actions...)
}

func (c *chromedpDriver) scoped(opts ...chromedp.QueryOption) []chromedp.QueryOption {
	if c.frame != nil {
		opts = append(opts, chromedp.FromNode(c.frame))
	}
	return opts
}

func (c *chromedpDriver) nodes(ctx context.Context, loc Locator) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(string(loc), &nodes, c.scoped(chromedp.ByQueryAll, chromedp.AtLeast(0))...)); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", loc, err)
	}
	return nodes, nil
}

func (c *chromedpDriver) nth(ctx context.Context, loc Locator, index int) (*cdp.Node, error) {
	nodes, err := c.nodes(ctx, loc)
	if err != nil {
		return nil, err
	}
	i, err := resolveIndex(index, len(nodes))
	if err != nil {
		return nil, fmt.Errorf("%s[%d]: %w", loc, index, err)
	}
	return nodes[i], nil
}

func (c *chromedpDriver) attributes(ctx context.Context, node *cdp.Node) (map[string]string, error) {
	var flat []string
	if err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		flat, err = dom.GetAttributes(node.NodeID).Do(ctx)
		return err
	})); err != nil {
		return nil, err
	}
	attrs := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		attrs[flat[i]] = flat[i+1]
	}
	return attrs, nil
}

func (c *chromedpDriver) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	c.frame = nil
	return nil
}

func (c *chromedpDriver) Count(ctx context.Context, loc Locator) (int, error) {
	nodes, err := c.nodes(ctx, loc)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (c *chromedpDriver) Click(ctx context.Context, loc Locator, index int) error {
	node, err := c.nth(ctx, loc, index)
	if err != nil {
		return err
	}
	if err := c.run(ctx, chromedp.MouseClickNode(node)); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	return nil
}

func (c *chromedpDriver) Fill(ctx context.Context, loc Locator, value string) error {
	if err := c.run(ctx, chromedp.SendKeys(string(loc), value, c.scoped(chromedp.ByQuery)...)); err != nil {
		return fmt.Errorf("failed to fill %s: %w", loc, err)
	}
	return nil
}

func (c *chromedpDriver) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	node, err := c.nth(ctx, loc, 0)
	if err != nil {
		return "", false, err
	}
	attrs, err := c.attributes(ctx, node)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s of %s: %w", name, loc, err)
	}
	v, ok := attrs[name]
	return v, ok, nil
}

func (c *chromedpDriver) Enabled(ctx context.Context, loc Locator) (bool, error) {
	_, disabled, err := c.Attribute(ctx, loc, "disabled")
	if err != nil {
		return false, err
	}
	return !disabled, nil
}

func (c *chromedpDriver) EnterFrame(ctx context.Context, loc Locator) error {
	node, err := c.nth(ctx, loc, 0)
	if err != nil {
		return err
	}
	c.frame = node
	return nil
}

func (c *chromedpDriver) Evaluate(ctx context.Context, script string) error {
	if err := c.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (c *chromedpDriver) PrintPDF(ctx context.Context, options PrintOptions) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().
			WithLandscape(options.Landscape).
			WithDisplayHeaderFooter(options.HeaderFooter).
			WithPrintBackground(options.PrintBackground).
			Do(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("failed to print page: %w", err)
	}
	return buf, nil
}

func (c *chromedpDriver) Screenshot(ctx context.Context, loc Locator) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.Screenshot(string(loc), &buf, c.scoped(chromedp.ByQuery)...)); err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return buf, nil
}

func (c *chromedpDriver) HTML(ctx context.Context) (string, error) {
	var content string
	if err := c.run(ctx, chromedp.OuterHTML("html", &content, c.scoped(chromedp.ByQuery)...)); err != nil {
		return "", fmt.Errorf("failed to get HTML content: %w", err)
	}
	return content, nil
}

func (c *chromedpDriver) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to get title: %w", err)
	}
	return title, nil
}

func (c *chromedpDriver) Close() error {
	err := chromedp.Cancel(c.browserCtx)
	c.browserCancel()
	c.allocCancel()
	return err
}

var _ Driver = (*chromedpDriver)(nil)
