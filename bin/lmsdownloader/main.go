package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"lmsdownloader/internal/capture"
	"lmsdownloader/internal/downloader"
	"lmsdownloader/internal/logging"
	"lmsdownloader/internal/notify"
	"lmsdownloader/internal/storage"
	"lmsdownloader/internal/telemetry"
)

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

type options struct {
	login          string
	password       string
	linkToDownload string
	saveTo         string

	loginLink        string
	waitBetweenPages float64
	linkCheckRegex   string
	headless         bool
	noLoggingInit    bool
	userAgent        string
	windowSize       string

	driver                    string
	chromeDevtoolsProtocolURL string
	installBrowsers           bool
	elementTimeout            time.Duration
	scormLoadDelay            time.Duration

	s3Bucket          string
	callbackURL       string
	pushgatewayURL    string
	pyroscopeEndpoint string
}

// parseWindowSize reads "width,height".
func parseWindowSize(s string) (int, int, error) {
	w, h, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, xerrors.Errorf("invalid window size %q, want WIDTH,HEIGHT", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, xerrors.Errorf("invalid window width %q", w)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, xerrors.Errorf("invalid window height %q", h)
	}
	return width, height, nil
}

func (o *options) session() (downloader.Session, error) {
	width, height, err := parseWindowSize(o.windowSize)
	if err != nil {
		return downloader.Session{}, err
	}
	if o.waitBetweenPages < 0 {
		return downloader.Session{}, xerrors.Errorf("invalid wait between pages %v", o.waitBetweenPages)
	}

	return downloader.Session{
		Login:            o.login,
		Password:         o.password,
		TargetURL:        o.linkToDownload,
		LoginURL:         o.loginLink,
		LinkPattern:      o.linkCheckRegex,
		UserAgent:        o.userAgent,
		WindowWidth:      width,
		WindowHeight:     height,
		Headless:         o.headless,
		WaitBetweenPages: time.Duration(o.waitBetweenPages * float64(time.Second)),
	}, nil
}

func (o *options) launcher() (capture.Launcher, capture.LaunchOptions, error) {
	browser := capture.LaunchOptions{
		ChromeDevtoolsProtocolURL: o.chromeDevtoolsProtocolURL,
	}

	switch o.driver {
	case "playwright":
		if o.installBrowsers {
			if err := capture.InstallPlaywright(); err != nil {
				return nil, browser, err
			}
		}
		return capture.NewPlaywrightLauncher(capture.DefaultPlaywrightConfig()), browser, nil
	case "chromedp":
		if o.installBrowsers && o.chromeDevtoolsProtocolURL == "" {
			path, err := capture.ResolveBrowser()
			if err != nil {
				return nil, browser, err
			}
			browser.ExecutablePath = path
		}
		return capture.NewChromedpLauncher(), browser, nil
	}
	return nil, browser, xerrors.Errorf("unknown driver %q, want playwright or chromedp", o.driver)
}

type callbackPayload struct {
	Status   string             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Report   *downloader.Report `json:"report,omitempty"`
	Mirrored []string           `json:"mirrored,omitempty"`
}

func run(ctx context.Context, o *options, logger logr.Logger) error {
	session, err := o.session()
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		PushgatewayURL:    o.pushgatewayURL,
		PyroscopeEndpoint: o.pyroscopeEndpoint,
	})
	if err != nil {
		return xerrors.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "failed to shut down telemetry")
		}
	}()

	launch, browser, err := o.launcher()
	if err != nil {
		return err
	}

	timing := downloader.DefaultTiming()
	timing.ElementTimeout = o.elementTimeout
	timing.ScormLoadDelay = o.scormLoadDelay

	d, err := downloader.New(session, launch,
		downloader.WithLogger(logger.WithName("downloader")),
		downloader.WithTiming(timing),
		downloader.WithMetrics(tel.Metrics()),
		downloader.WithBrowser(browser),
	)
	if err != nil {
		return err
	}

	report, runErr := d.DownloadReport(ctx, o.saveTo)

	payload := callbackPayload{Status: "success", Report: report}
	if runErr == nil && o.s3Bucket != "" {
		mirrored, err := mirror(ctx, o.s3Bucket, report)
		if err != nil {
			runErr = err
		} else {
			logger.Info("Mirrored to S3", "urls", strings.Join(mirrored, ","))
			payload.Mirrored = mirrored
		}
	}
	if runErr != nil {
		payload.Status = "failure"
		payload.Error = runErr.Error()
	}

	if o.callbackURL != "" {
		// Failures are reported even when the run was interrupted.
		if err := notify.NewCallback(o.callbackURL, notify.DefaultConfig()).Send(context.WithoutCancel(ctx), payload); err != nil {
			logger.Error(err, "failed to send callback", "url", o.callbackURL)
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Downloaded files", "paths", strings.Join(report.Files, ", "))
	return nil
}

func mirror(ctx context.Context, bucket string, report *downloader.Report) ([]string, error) {
	s3, err := storage.NewS3Storage(ctx, storage.S3Config{Bucket: bucket})
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("%s/%s", time.Now().Format("20060102150405"), report.Title)
	return storage.Mirror(ctx, s3, prefix, report.Files)
}

func newRootCommand() *cobra.Command {
	o := &options{}

	goFlags := flag.NewFlagSet("logging", flag.ContinueOnError)
	logOptions := logging.BindFlags(goFlags)

	cmd := &cobra.Command{
		Use:          "lmsdownloader",
		Short:        "Download SCORM and H5P lectures from the LMS as PDF",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logOptions.Init(!o.noLoggingInit)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, o, logger); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("Interrupted")
				} else {
					logger.Error(err, "failed to download")
				}
				// Already logged; let cobra print it only when logging is off.
				cmd.SilenceErrors = !o.noLoggingInit
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.login, "login", "l", envOrDefaultValue("LMS_LOGIN", ""), "LMS login")
	f.StringVarP(&o.password, "password", "p", envOrDefaultValue("LMS_PASSWORD", ""), "LMS password")
	f.StringVarP(&o.linkToDownload, "link-to-download", "u", envOrDefaultValue("LMS_LINK", ""), "Link to the SCORM or H5P resource")
	f.StringVarP(&o.saveTo, "save-to", "o", envOrDefaultValue("LMS_SAVE_TO", ""), "Directory to save the files to")
	f.StringVar(&o.loginLink, "login-link", envOrDefaultValue("LMS_LOGIN_LINK", downloader.DefaultLoginURL), "LMS login page")
	f.Float64Var(&o.waitBetweenPages, "wait-between-pages", envOrDefaultValue("LMS_WAIT_BETWEEN_PAGES", downloader.DefaultWaitBetweenPages.Seconds()), "Seconds to wait after switching pages")
	f.StringVar(&o.linkCheckRegex, "link-check-regex", envOrDefaultValue("LMS_LINK_CHECK_REGEX", downloader.DefaultLinkPattern), "Pattern the link must match (\"^\" accepts any link)")
	f.BoolVar(&o.headless, "headless", envOrDefaultValue("LMS_HEADLESS", false), "Run the browser without a window")
	f.BoolVar(&o.noLoggingInit, "no-logging-init", false, "Do not initialize logging")
	f.StringVar(&o.userAgent, "user-agent", envOrDefaultValue("LMS_USER_AGENT", downloader.DefaultUserAgent), "Browser user agent")
	f.StringVar(&o.windowSize, "window-size", envOrDefaultValue("LMS_WINDOW_SIZE", fmt.Sprintf("%d,%d", downloader.DefaultWindowWidth, downloader.DefaultWindowHeight)), "Browser window size as WIDTH,HEIGHT")
	f.StringVar(&o.driver, "driver", envOrDefaultValue("LMS_DRIVER", "playwright"), "Browser driver (playwright or chromedp)")
	f.StringVar(&o.chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	f.BoolVar(&o.installBrowsers, "install-browsers", envOrDefaultValue("LMS_INSTALL_BROWSERS", false), "Download a browser for the selected driver before starting")
	f.DurationVar(&o.elementTimeout, "element-timeout", envOrDefaultValue("LMS_ELEMENT_TIMEOUT", downloader.DefaultTiming().ElementTimeout), "How long to wait for page elements")
	f.DurationVar(&o.scormLoadDelay, "scorm-load-delay", envOrDefaultValue("LMS_SCORM_LOAD_DELAY", downloader.DefaultTiming().ScormLoadDelay), "Delay for SCORM content to finish loading")
	f.StringVar(&o.s3Bucket, "s3-bucket", envOrDefaultValue("S3_BUCKET", ""), "Also upload the files to this S3 bucket")
	f.StringVar(&o.callbackURL, "callback-url", envOrDefaultValue("CALLBACK_URL", ""), "Callback URL to send results to")
	f.StringVar(&o.pushgatewayURL, "pushgateway-url", envOrDefaultValue("PUSHGATEWAY_URL", ""), "Prometheus Pushgateway to push run metrics to")
	f.StringVar(&o.pyroscopeEndpoint, "pyroscope-endpoint", envOrDefaultValue("PYROSCOPE_ENDPOINT", ""), "Pyroscope server to send profiles to")
	f.AddGoFlagSet(goFlags)

	for _, required := range []struct{ flag, env string }{
		{"login", "LMS_LOGIN"},
		{"password", "LMS_PASSWORD"},
		{"link-to-download", "LMS_LINK"},
		{"save-to", "LMS_SAVE_TO"},
	} {
		if _, ok := os.LookupEnv(required.env); !ok {
			_ = cmd.MarkFlagRequired(required.flag)
		}
	}

	return cmd
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(-1)
	}
}
