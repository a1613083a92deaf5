package capture

import (
	"context"
	"errors"
)

// Locator is a CSS selector evaluated in the driver's current scope.
type Locator string

// PrintOptions mirrors the print-to-PDF settings of the browser's print dialog.
type PrintOptions struct {
	Landscape       bool
	HeaderFooter    bool
	PrintBackground bool
}

type LaunchOptions struct {
	Headless       bool
	UserAgent      string
	WindowWidth    int
	WindowHeight   int
	Args           []string
	ExecutablePath string

	ChromeDevtoolsProtocolURL string
}

// DefaultArgs are the Chromium switches every backend starts with.
var DefaultArgs = []string{
	"--disable-gpu",
	"--disable-blink-features=AutomationControlled",
	"--disable-infobars",
	"--disable-extensions",
	"--ignore-ssl-errors=yes",
	"--ignore-certificate-errors",
	"--disable-default-apps",
	"--disable-notifications",
	"--disable-popup-window",
	"--kiosk-printing",
	"--no-sandbox",
}

// Driver controls one browser tab. Lookups run in the current scope, which is
// the top-level document until EnterFrame is called and again after Navigate.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Count(ctx context.Context, loc Locator) (int, error)
	// Click clicks the index-th match; negative indexes count from the end.
	Click(ctx context.Context, loc Locator, index int) error
	Fill(ctx context.Context, loc Locator, value string) error
	// Attribute reports the attribute of the first match and whether it is set.
	Attribute(ctx context.Context, loc Locator, name string) (string, bool, error)
	Enabled(ctx context.Context, loc Locator) (bool, error)
	EnterFrame(ctx context.Context, loc Locator) error
	// Evaluate runs script in the top-level document regardless of the scope.
	Evaluate(ctx context.Context, script string) error
	PrintPDF(ctx context.Context, options PrintOptions) ([]byte, error)
	// Screenshot returns a PNG of the first match.
	Screenshot(ctx context.Context, loc Locator) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close() error
}

type Launcher func(ctx context.Context, options LaunchOptions) (Driver, error)

var ErrNoElement = errors.New("no element matches locator")

// resolveIndex maps a possibly negative index onto [0, count).
func resolveIndex(index int, count int) (int, error) {
	if index < 0 {
		index += count
	}
	if index < 0 || index >= count {
		return 0, ErrNoElement
	}
	return index, nil
}

func args(options LaunchOptions) []string {
	a := make([]string, 0, len(DefaultArgs)+len(options.Args))
	a = append(a, DefaultArgs...)
	return append(a, options.Args...)
}
