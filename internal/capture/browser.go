package capture

import (
	"fmt"
	"os/exec"

	"github.com/go-rod/rod/lib/launcher"
)

var browserNames = []string{
	"chromium-browser", "chromium", "google-chrome",
	"google-chrome-stable", "chrome",
}

// LookBrowser returns the first Chrome or Chromium executable found in PATH.
func LookBrowser() (string, bool) {
	for _, name := range browserNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// ResolveBrowser returns a local Chrome executable, downloading a compatible
// Chromium build into the rod cache when none is installed.
func ResolveBrowser() (string, error) {
	if path, ok := LookBrowser(); ok {
		return path, nil
	}
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}
	return path, nil
}
