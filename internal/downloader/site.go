package downloader

import (
	"lmsdownloader/internal/capture"
)

type ContentType int

const (
	ScormPresentation ContentType = iota + 1
	ScormBook
	H5PPresentation
)

func (c ContentType) String() string {
	switch c {
	case ScormPresentation:
		return "ScormPresentation"
	case ScormBook:
		return "ScormBook"
	case H5PPresentation:
		return "H5PPresentation"
	}
	return "Unknown"
}

func (c ContentType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

type CaptureMode int

const (
	// PrintToPDF renders the current document with the browser's PDF printer.
	PrintToPDF CaptureMode = iota
	// ElementScreenshot rasterizes one element and converts it to a PDF page.
	ElementScreenshot
)

// Profile describes how one content type is recognized, captured and paged.
type Profile struct {
	ContentType ContentType
	Marker      capture.Locator
	Mode        CaptureMode
	// ScreenshotTarget is used with ElementScreenshot only.
	ScreenshotTarget capture.Locator
	Next             capture.Locator
	Landscape        bool
	Transcript       bool
}

// Site collects the locators of one LMS skin.
type Site struct {
	LoginUsername capture.Locator
	LoginPassword capture.Locator
	LoginSubmit   capture.Locator
	LoginSuccess  capture.Locator
	LoginError    capture.Locator

	EnterButton capture.Locator
	ScormFrame  capture.Locator
	H5PFrame    capture.Locator

	ScormViewers []capture.Locator
	DialogButton capture.Locator
	BookToggle   capture.Locator

	H5PWrapper  capture.Locator
	H5PPrevious capture.Locator

	Profiles []Profile
}

// DefaultSite returns the locators of the Moscow Polytech Moodle.
func DefaultSite() Site {
	return Site{
		LoginUsername: "#username",
		LoginPassword: "#password",
		LoginSubmit:   "#loginbtn",
		LoginSuccess:  ".usertext",
		LoginError:    ".loginerrors",

		EnterButton: "input[class='btn btn-primary'][type='submit']",
		ScormFrame:  "#scorm_object",
		H5PFrame:    ".h5p-iframe",

		ScormViewers: []capture.Locator{
			"#playerView",
			"div[class='viewer bookViewer']",
			"div[class='viewer pageViewer']",
		},
		DialogButton: ".message-box-buttons-panel__window-button",
		BookToggle:   "button[class='btn']:has(> div[class='icon viewMode book'])",

		H5PWrapper:  ".h5p-wrapper",
		H5PPrevious: "div[class='h5p-footer-button h5p-footer-previous-slide']",

		Profiles: []Profile{
			{
				ContentType: ScormPresentation,
				Marker:      "#playerView",
				Mode:        PrintToPDF,
				Next:        "button[aria-label='next slide']",
				Landscape:   true,
			},
			{
				ContentType: ScormBook,
				Marker:      "div[class='viewer pageViewer']",
				Mode:        PrintToPDF,
				Next:        "button[class='btn']:has(> div[class='icon next down'])",
				Landscape:   false,
				Transcript:  true,
			},
			{
				// Inside the H5P frame the document element carries the class.
				ContentType:      H5PPresentation,
				Marker:           ".h5p-iframe",
				Mode:             ElementScreenshot,
				ScreenshotTarget: ".h5p-iframe",
				Next:             "div[class='h5p-footer-button h5p-footer-next-slide']",
				Landscape:        true,
			},
		},
	}
}
