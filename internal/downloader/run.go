package downloader

import (
	"context"
	"errors"
	"net/url"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"

	"lmsdownloader/internal/capture"
	"lmsdownloader/internal/pdf"
	"lmsdownloader/internal/storage"
	"lmsdownloader/internal/transcript"
)

// run is one download with its own browser and page directory.
type run struct {
	*Downloader

	driver capture.Driver
	pages  *storage.FileStorage
}

func (r *run) release() {
	r.logger.Info("Exiting browser")
	if err := r.driver.Close(); err != nil {
		r.logger.Error(err, "failed to close browser")
	}
	r.logger.Info("Cleaning up temp files", "directory", r.pages.Directory())
	if err := r.pages.Remove(); err != nil {
		r.logger.Error(err, "failed to clean up temp files")
	}
}

func (r *run) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *run) run(ctx context.Context, outputDirectory string) (*Report, error) {
	if err := r.step(ctx, "Authenticate", r.authenticate); err != nil {
		return nil, err
	}
	if err := r.step(ctx, "OpenTarget", r.openTarget); err != nil {
		return nil, err
	}
	if err := r.step(ctx, "EnterContent", r.enterContent); err != nil {
		return nil, err
	}

	var profile Profile
	if err := r.step(ctx, "DetectContentType", func(ctx context.Context) error {
		var err error
		profile, err = r.detect(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("content_type", profile.ContentType.String()))

	if profile.Landscape {
		r.logger.Info("Enabling landscape mode")
	} else {
		r.logger.Info("Disabling landscape mode")
	}

	var pagePaths []string
	if err := r.step(ctx, "Capture", func(ctx context.Context) error {
		var err error
		pagePaths, err = r.captureAll(ctx, profile)
		return err
	}); err != nil {
		return nil, err
	}

	rawTitle, err := r.driver.Title(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to read page title: %w", err)
	}
	title := SanitizeTitle(rawTitle)

	if err := os.MkdirAll(outputDirectory, 0755); err != nil {
		return nil, xerrors.Errorf("failed to create output directory: %w", err)
	}
	out := storage.NewFileStorage(storage.FileConfig{Directory: outputDirectory})

	report := &Report{
		ContentType: profile.ContentType,
		Title:       title,
		Pages:       len(pagePaths),
		Landscape:   profile.Landscape,
	}

	var transcriptPath string
	if profile.Transcript {
		if err := r.step(ctx, "Transcript", func(ctx context.Context) error {
			var err error
			transcriptPath, err = r.writeTranscript(ctx, out, title)
			return err
		}); err != nil {
			return nil, err
		}
	}

	pdfPath, err := out.Path(title + ".pdf")
	if err != nil {
		return nil, err
	}
	if err := r.step(ctx, "Assemble", func(ctx context.Context) error {
		r.logger.Info("Merging PDF files", "pages", len(pagePaths), "output", pdfPath)
		return pdf.Merge(pagePaths, pdfPath)
	}); err != nil {
		return nil, err
	}

	report.Files = append(report.Files, pdfPath)
	if transcriptPath != "" {
		report.Files = append(report.Files, transcriptPath)
	}

	r.logger.Info("Done", "files", report.Files)
	return report, nil
}

func (r *run) authenticate(ctx context.Context) error {
	site := r.site

	r.logger.Info("Loading login page", "url", r.session.LoginURL)
	if err := r.driver.Navigate(ctx, r.session.LoginURL); err != nil {
		return err
	}
	if _, err := r.waitAny(ctx, site.LoginSubmit); err != nil {
		return err
	}

	r.logger.Info("Logging in")
	if err := r.driver.Fill(ctx, site.LoginUsername, r.session.Login); err != nil {
		return err
	}
	if err := r.driver.Fill(ctx, site.LoginPassword, r.session.Password); err != nil {
		return err
	}
	if err := r.driver.Click(ctx, site.LoginSubmit, 0); err != nil {
		return err
	}

	if _, err := r.waitAny(ctx, site.LoginSuccess, site.LoginError); err != nil {
		return err
	}
	failed, err := r.present(ctx, site.LoginError)
	if err != nil {
		return err
	}
	if failed {
		return ErrLoginFailed
	}

	r.logger.Info("Logged in successfully")
	return nil
}

func (r *run) openTarget(ctx context.Context) error {
	site := r.site
	markers := []capture.Locator{site.EnterButton, site.ScormFrame, site.H5PFrame}

	r.logger.Info("Redirecting", "url", r.session.TargetURL)
	if err := r.driver.Navigate(ctx, r.session.TargetURL); err != nil {
		return err
	}
	if _, err := r.waitAny(ctx, markers...); err != nil {
		return err
	}

	n, err := r.driver.Count(ctx, site.EnterButton)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		// A click may already have left the page.
		if err := r.driver.Click(ctx, site.EnterButton, i); err != nil {
			if errors.Is(err, capture.ErrNoElement) {
				break
			}
			return err
		}
	}

	_, err = r.waitAny(ctx, markers...)
	return err
}

func (r *run) enterContent(ctx context.Context) error {
	scorm, err := r.present(ctx, r.site.ScormFrame)
	if err != nil {
		return err
	}
	if scorm {
		return r.enterScorm(ctx)
	}

	h5p, err := r.present(ctx, r.site.H5PFrame)
	if err != nil {
		return err
	}
	if h5p {
		return r.enterH5P(ctx)
	}

	return xerrors.Errorf("%w: no content frame on %s", ErrUnsupportedContent, r.session.TargetURL)
}

// resolveFrameSource makes a frame's src absolute against the page it was found on.
func resolveFrameSource(base string, src string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", xerrors.Errorf("failed to parse %s: %w", base, err)
	}
	s, err := url.Parse(src)
	if err != nil {
		return "", xerrors.Errorf("failed to parse frame source %s: %w", src, err)
	}
	return b.ResolveReference(s).String(), nil
}

func (r *run) enterScorm(ctx context.Context) error {
	site := r.site

	r.logger.Info("Switching to the SCORM frame")
	src, ok, err := r.driver.Attribute(ctx, site.ScormFrame, "src")
	if err != nil {
		return err
	}
	if !ok || src == "" {
		return xerrors.Errorf("%w: SCORM frame has no source", ErrUnsupportedContent)
	}
	frameURL, err := resolveFrameSource(r.session.TargetURL, src)
	if err != nil {
		return err
	}
	if err := r.driver.Navigate(ctx, frameURL); err != nil {
		return err
	}

	if _, err := r.waitAny(ctx, site.ScormViewers...); err != nil {
		return err
	}
	r.logger.Info("Subject page opened")
	if err := sleep(ctx, r.timing.FrameSettle); err != nil {
		return err
	}

	dialog, err := r.present(ctx, site.DialogButton)
	if err != nil {
		return err
	}
	if dialog {
		r.logger.Info("Dismissing dialog")
		if err := r.driver.Click(ctx, site.DialogButton, -1); err != nil {
			return err
		}
	}

	r.logger.Info("Waiting for loading", "delay", r.timing.ScormLoadDelay)
	if err := sleep(ctx, r.timing.ScormLoadDelay); err != nil {
		return err
	}

	book, err := r.present(ctx, site.BookToggle)
	if err != nil {
		return err
	}
	if book {
		r.logger.Info("Fixing book mode")
		if err := r.driver.Click(ctx, site.BookToggle, 0); err != nil {
			return err
		}
		if err := sleep(ctx, r.timing.Settle); err != nil {
			return err
		}
	}

	return nil
}

func (r *run) enterH5P(ctx context.Context) error {
	site := r.site

	r.logger.Info("Switching to the H5P frame")
	if err := r.driver.EnterFrame(ctx, site.H5PFrame); err != nil {
		return err
	}
	if _, err := r.waitAny(ctx, site.H5PWrapper); err != nil {
		return err
	}
	if err := sleep(ctx, r.timing.FrameSettle); err != nil {
		return err
	}

	r.logger.Info("Going to the first page")
	for rewound := 0; ; rewound++ {
		v, ok, err := r.driver.Attribute(ctx, site.H5PPrevious, "aria-disabled")
		if errors.Is(err, capture.ErrNoElement) {
			return nil
		}
		if err != nil {
			return err
		}
		if !ok || v != "false" {
			r.logger.V(1).Info("Rewound", "slides", rewound)
			return nil
		}
		if err := r.driver.Click(ctx, site.H5PPrevious, 0); err != nil {
			return err
		}
		if err := sleep(ctx, r.session.WaitBetweenPages); err != nil {
			return err
		}
	}
}

// detect picks the single profile whose marker is present.
func (r *run) detect(ctx context.Context) (Profile, error) {
	var matched []Profile
	for _, p := range r.site.Profiles {
		ok, err := r.present(ctx, p.Marker)
		if err != nil {
			return Profile{}, err
		}
		if ok {
			matched = append(matched, p)
		}
	}

	switch len(matched) {
	case 0:
		return Profile{}, xerrors.Errorf("%w: no content marker found", ErrUnsupportedContent)
	case 1:
		r.logger.Info("Detected content type", "type", matched[0].ContentType)
		return matched[0], nil
	default:
		types := make([]string, 0, len(matched))
		for _, p := range matched {
			types = append(types, p.ContentType.String())
		}
		return Profile{}, xerrors.Errorf("%w: %v", ErrAmbiguousContent, types)
	}
}

func (r *run) writeTranscript(ctx context.Context, out *storage.FileStorage, title string) (string, error) {
	r.logger.Info("Extracting text")
	markup, err := r.driver.HTML(ctx)
	if err != nil {
		return "", err
	}
	text, err := transcript.Extract(markup)
	if err != nil {
		return "", err
	}
	path, err := out.Put(ctx, title+".txt", []byte(text))
	if err != nil {
		return "", err
	}
	r.logger.Info("Saved text", "path", path)
	return path, nil
}
