package downloader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"lmsdownloader/internal/capture"
	"lmsdownloader/internal/pdf"
)

const (
	testTargetURL = "https://online.mospolytech.ru/mod/scorm/view.php?id=42"
	testFrameSrc  = "player.php?a=42&currentorg=lecture"
	testFrameURL  = "https://online.mospolytech.ru/mod/scorm/player.php?a=42&currentorg=lecture"
)

// fakeSite scripts the behaviour of a Moodle course page.
type fakeSite struct {
	kind  ContentType
	pages int
	title string

	loginFails  bool
	enterButton bool
	dialog      bool
	bookToggle  bool
	// startPage is where an H5P presentation opens.
	startPage int
	// nextVanishes removes the next control on the last page instead of disabling it.
	nextVanishes bool
	// sameShots makes every H5P screenshot identical.
	sameShots bool
	// extraMarker shows the book page viewer next to the SCORM player.
	extraMarker bool
}

type fakeDriver struct {
	t    *testing.T
	site fakeSite
	dir  string

	mu         sync.Mutex
	location   string
	entered    bool
	inFrame    bool
	dismissed  bool
	bookMode   bool
	page       int
	navigated  []string
	filled     map[capture.Locator]string
	clicks     map[capture.Locator]int
	lookups    map[capture.Locator]int
	prints     []capture.PrintOptions
	evaluated  []string
	shots      int
	closed     bool
	launchedAs capture.LaunchOptions
}

func newFakeDriver(t *testing.T, site fakeSite) *fakeDriver {
	if site.title == "" {
		site.title = "Lecture"
	}
	return &fakeDriver{
		t:        t,
		site:     site,
		dir:      t.TempDir(),
		location: "blank",
		page:     site.startPage,
		filled:   map[capture.Locator]string{},
		clicks:   map[capture.Locator]int{},
		lookups:  map[capture.Locator]int{},
	}
}

// launcher returns a Launcher handing out d and counting launches.
func (d *fakeDriver) launcher(launches *int) capture.Launcher {
	return func(ctx context.Context, options capture.LaunchOptions) (capture.Driver, error) {
		*launches++
		d.launchedAs = options
		return d, nil
	}
}

func (d *fakeDriver) profile() Profile {
	for _, p := range DefaultSite().Profiles {
		if p.ContentType == d.site.kind {
			return p
		}
	}
	return Profile{}
}

func (d *fakeDriver) lastPage() bool {
	return d.page >= d.site.pages-1
}

func (d *fakeDriver) count(loc capture.Locator) int {
	site := DefaultSite()
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}

	if d.inFrame {
		switch loc {
		case site.H5PWrapper, site.H5PPrevious, ".h5p-iframe":
			return 1
		case d.profile().Next:
			return b(!(d.site.nextVanishes && d.lastPage()))
		}
		return 0
	}

	switch d.location {
	case "login":
		switch loc {
		case site.LoginUsername, site.LoginPassword, site.LoginSubmit:
			return 1
		}
	case "login-error":
		return b(loc == site.LoginError)
	case "dashboard":
		return b(loc == site.LoginSuccess)
	case "target":
		showEnter := d.site.enterButton && (!d.entered || d.site.kind == 0)
		switch loc {
		case site.EnterButton:
			return b(showEnter)
		case site.ScormFrame:
			return b(!showEnter && (d.site.kind == ScormPresentation || d.site.kind == ScormBook))
		case site.H5PFrame:
			return b(!showEnter && d.site.kind == H5PPresentation)
		}
	case "scorm":
		switch loc {
		case "#playerView":
			return b(d.site.kind == ScormPresentation)
		case "div[class='viewer bookViewer']":
			return b(d.site.kind == ScormBook && d.site.bookToggle && !d.bookMode)
		case "div[class='viewer pageViewer']":
			return b((d.site.kind == ScormBook && (!d.site.bookToggle || d.bookMode)) || d.site.extraMarker)
		case site.DialogButton:
			if d.site.dialog && !d.dismissed {
				return 2
			}
		case site.BookToggle:
			return b(d.site.bookToggle && !d.bookMode)
		case d.profile().Next:
			return b(!(d.site.nextVanishes && d.lastPage()))
		}
	}
	return 0
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.navigated = append(d.navigated, url)
	d.inFrame = false
	switch url {
	case DefaultLoginURL:
		d.location = "login"
	case testFrameURL:
		d.location = "scorm"
	default:
		d.location = "target"
	}
	return ctx.Err()
}

func (d *fakeDriver) Count(ctx context.Context, loc capture.Locator) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lookups[loc]++
	return d.count(loc), ctx.Err()
}

func (d *fakeDriver) Click(ctx context.Context, loc capture.Locator, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.count(loc)
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return fmt.Errorf("%s[%d]: %w", loc, index, capture.ErrNoElement)
	}
	d.clicks[loc]++

	site := DefaultSite()
	switch {
	case loc == site.LoginSubmit:
		if d.site.loginFails {
			d.location = "login-error"
		} else {
			d.location = "dashboard"
		}
	case loc == site.EnterButton:
		d.entered = true
	case loc == site.DialogButton:
		if index == n-1 {
			d.dismissed = true
		}
	case loc == site.BookToggle:
		d.bookMode = true
	case loc == site.H5PPrevious:
		d.page--
	case loc == d.profile().Next:
		d.page++
	}
	return ctx.Err()
}

func (d *fakeDriver) Fill(ctx context.Context, loc capture.Locator, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count(loc) == 0 {
		return capture.ErrNoElement
	}
	d.filled[loc] = value
	return ctx.Err()
}

func (d *fakeDriver) Attribute(ctx context.Context, loc capture.Locator, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count(loc) == 0 {
		return "", false, capture.ErrNoElement
	}
	site := DefaultSite()
	switch {
	case loc == site.ScormFrame && name == "src":
		return testFrameSrc, true, nil
	case loc == site.H5PPrevious && name == "aria-disabled":
		return fmt.Sprint(d.page <= 0), true, nil
	case loc == d.profile().Next && name == "aria-disabled" && d.site.kind != ScormPresentation:
		return fmt.Sprint(d.lastPage()), true, nil
	}
	return "", false, ctx.Err()
}

// Enabled models a SCORM player that disables its next button on the last slide.
func (d *fakeDriver) Enabled(ctx context.Context, loc capture.Locator) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count(loc) == 0 {
		return false, capture.ErrNoElement
	}
	if loc == d.profile().Next && d.site.kind == ScormPresentation {
		return !d.lastPage(), nil
	}
	return true, ctx.Err()
}

func (d *fakeDriver) EnterFrame(ctx context.Context, loc capture.Locator) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count(loc) == 0 {
		return capture.ErrNoElement
	}
	d.inFrame = true
	return ctx.Err()
}

func (d *fakeDriver) Evaluate(ctx context.Context, script string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.evaluated = append(d.evaluated, script)
	return ctx.Err()
}

// pageImage is wider for every later page so page order survives merging.
func (d *fakeDriver) pageImage() *image.RGBA {
	page := d.page
	if d.site.sameShots {
		page = 0
	}
	img := image.NewRGBA(image.Rect(0, 0, 100+10*page, 80))
	c := color.RGBA{R: uint8(40 * page), G: 128, B: 255 - uint8(40*page), A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func (d *fakeDriver) PrintPDF(ctx context.Context, options capture.PrintOptions) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prints = append(d.prints, options)
	path := filepath.Join(d.dir, fmt.Sprintf("print-%d.pdf", len(d.prints)))
	if err := pdf.FromImage(d.pageImage(), path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (d *fakeDriver) Screenshot(ctx context.Context, loc capture.Locator) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count(loc) == 0 {
		return nil, capture.ErrNoElement
	}
	d.shots++
	var buf bytes.Buffer
	if err := png.Encode(&buf, d.pageImage()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *fakeDriver) HTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "<html><head><title>%s</title><script>var page = %d;</script></head><body>", d.site.title, d.page)
	fmt.Fprintf(&sb, "<div class=\"viewer pageViewer\"><h2>Page %d</h2><p>Text of page %d</p></div>", d.page+1, d.page+1)
	sb.WriteString("</body></html>")
	return sb.String(), ctx.Err()
}

func (d *fakeDriver) Title(ctx context.Context) (string, error) {
	return d.site.title, ctx.Err()
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

var _ capture.Driver = (*fakeDriver)(nil)
