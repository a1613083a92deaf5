package downloader

import (
	"context"
	"regexp"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"

	"lmsdownloader/internal/capture"
	"lmsdownloader/internal/storage"
	"lmsdownloader/internal/telemetry"
)

var tracer = otel.Tracer("lmsdownloader/internal/downloader")

// Report describes the result of a successful run.
type Report struct {
	ContentType ContentType `json:"contentType"`
	Title       string      `json:"title"`
	Pages       int         `json:"pages"`
	Landscape   bool        `json:"landscape"`
	// Files lists the merged PDF first, then the transcript if any.
	Files []string `json:"files"`
}

type Downloader struct {
	session     Session
	linkPattern *regexp.Regexp
	launch      capture.Launcher
	browser     capture.LaunchOptions

	site    Site
	timing  Timing
	logger  logr.Logger
	metrics *telemetry.Metrics
}

type Option func(*Downloader)

func WithLogger(logger logr.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

func WithSite(site Site) Option {
	return func(d *Downloader) {
		d.site = site
	}
}

func WithTiming(timing Timing) Option {
	return func(d *Downloader) {
		d.timing = timing
	}
}

func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(d *Downloader) {
		d.metrics = metrics
	}
}

// WithBrowser sets the launch settings that are not part of the Session:
// extra Chromium switches, the executable and a DevTools endpoint to attach to.
func WithBrowser(options capture.LaunchOptions) Option {
	return func(d *Downloader) {
		d.browser = options
	}
}

func New(session Session, launch capture.Launcher, opts ...Option) (*Downloader, error) {
	if session.LinkPattern == "" {
		session.LinkPattern = DefaultLinkPattern
	}
	linkPattern, err := regexp.Compile(session.LinkPattern)
	if err != nil {
		return nil, xerrors.Errorf("failed to compile link pattern: %w", err)
	}
	if session.LoginURL == "" {
		session.LoginURL = DefaultLoginURL
	}

	d := &Downloader{
		session:     session,
		linkPattern: linkPattern,
		launch:      launch,
		site:        DefaultSite(),
		timing:      DefaultTiming(),
		logger:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Download runs the whole pipeline and returns the produced files.
func (d *Downloader) Download(ctx context.Context, outputDirectory string) ([]string, error) {
	report, err := d.DownloadReport(ctx, outputDirectory)
	if err != nil {
		return nil, err
	}
	return report.Files, nil
}

func (d *Downloader) DownloadReport(ctx context.Context, outputDirectory string) (report *Report, err error) {
	ctx, span := tracer.Start(ctx, "Download", trace.WithAttributes(attribute.String("url", d.session.TargetURL)))
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		d.metrics.RunFinished(ctx, outcome, time.Since(start))
		span.End()
	}()

	d.logger.Info("Checking link", "pattern", d.session.LinkPattern)
	if !d.linkPattern.MatchString(d.session.TargetURL) {
		return nil, xerrors.Errorf("%w: %s must match %s", ErrInvalidLink, d.session.TargetURL, d.session.LinkPattern)
	}

	r, err := d.start(ctx)
	if err != nil {
		return nil, err
	}
	defer r.release()

	return r.run(ctx, outputDirectory)
}

// start acquires the browser and the page directory of one run. Both are
// released by run.release on every path.
func (d *Downloader) start(ctx context.Context) (*run, error) {
	pages, err := storage.NewTempStorage("lmsdownloader-")
	if err != nil {
		return nil, err
	}

	options := d.browser
	options.Headless = d.session.Headless
	options.UserAgent = d.session.UserAgent
	options.WindowWidth = d.session.WindowWidth
	options.WindowHeight = d.session.WindowHeight

	d.logger.Info("Starting browser", "headless", options.Headless)
	driver, err := d.launch(ctx, options)
	if err != nil {
		if err := pages.Remove(); err != nil {
			d.logger.Error(err, "failed to clean up temp files")
		}
		return nil, xerrors.Errorf("failed to launch browser: %w", err)
	}

	return &run{
		Downloader: d,
		driver:     driver,
		pages:      pages,
	}, nil
}
