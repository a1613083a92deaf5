package downloader

import (
	"context"
	"image"
	"strconv"

	"golang.org/x/xerrors"

	"lmsdownloader/internal/capture"
	"lmsdownloader/internal/imaging"
	"lmsdownloader/internal/pdf"
)

// A page whose screenshot differs from the previous one in fewer pixels than
// this share is most likely the same slide.
const identicalPageRatio = 0.001

// captureAll captures the current page, then follows the next control until
// it is absent or disabled. It returns the per-page PDFs in capture order.
func (r *run) captureAll(ctx context.Context, profile Profile) ([]string, error) {
	options := capture.PrintOptions{
		Landscape:    profile.Landscape,
		HeaderFooter: true,
	}

	var paths []string
	var previous *image.RGBA
	for n := 0; ; n++ {
		path, shot, err := r.capturePage(ctx, profile, options, n)
		if err != nil {
			return nil, xerrors.Errorf("failed to capture page %d: %w", n, err)
		}
		paths = append(paths, path)
		r.metrics.PageCaptured(ctx, profile.ContentType.String())

		if shot != nil {
			if previous != nil && imaging.ChangeRatio(previous, shot, 0) < identicalPageRatio {
				r.logger.Info("Page looks identical to the previous one", "page", n)
			}
			previous = shot
		}

		more, err := r.hasNext(ctx, profile.Next)
		if err != nil {
			return nil, err
		}
		if !more {
			r.logger.Info("Downloading done", "pages", len(paths))
			return paths, nil
		}

		r.logger.Info("Moving to the next page", "wait", r.session.WaitBetweenPages)
		if err := r.driver.Click(ctx, profile.Next, 0); err != nil {
			return nil, err
		}
		if err := sleep(ctx, r.session.WaitBetweenPages); err != nil {
			return nil, err
		}
	}
}

// capturePage stores page n as n.pdf. For screenshots it also returns the
// flattened image so consecutive pages can be compared.
func (r *run) capturePage(ctx context.Context, profile Profile, options capture.PrintOptions, n int) (string, *image.RGBA, error) {
	key := strconv.Itoa(n)

	switch profile.Mode {
	case PrintToPDF:
		if err := r.driver.Evaluate(ctx, "window.print();"); err != nil {
			return "", nil, err
		}
		data, err := r.driver.PrintPDF(ctx, options)
		if err != nil {
			return "", nil, err
		}
		path, err := r.pages.Put(ctx, key+".pdf", data)
		if err != nil {
			return "", nil, err
		}
		r.logger.Info("Downloaded page", "path", path)
		return path, nil, nil

	case ElementScreenshot:
		data, err := r.driver.Screenshot(ctx, profile.ScreenshotTarget)
		if err != nil {
			return "", nil, err
		}
		if _, err := r.pages.Put(ctx, key+".png", data); err != nil {
			return "", nil, err
		}
		img, err := imaging.Decode(data)
		if err != nil {
			return "", nil, err
		}
		flat := imaging.Flatten(img)
		path, err := r.pages.Path(key + ".pdf")
		if err != nil {
			return "", nil, err
		}
		if err := pdf.FromImage(flat, path); err != nil {
			return "", nil, err
		}
		r.logger.Info("Downloaded page", "path", path)
		return path, flat, nil
	}

	return "", nil, xerrors.Errorf("unknown capture mode %d", profile.Mode)
}

// hasNext reports whether next exists and can be clicked.
func (r *run) hasNext(ctx context.Context, next capture.Locator) (bool, error) {
	ok, err := r.present(ctx, next)
	if err != nil || !ok {
		return false, err
	}
	enabled, err := r.driver.Enabled(ctx, next)
	if err != nil || !enabled {
		return false, err
	}
	v, _, err := r.driver.Attribute(ctx, next, "aria-disabled")
	if err != nil {
		return false, err
	}
	return v != "true", nil
}
