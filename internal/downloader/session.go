package downloader

import "time"

const (
	DefaultLoginURL    = "https://online.mospolytech.ru/login/index.php"
	DefaultLinkPattern = `^(http|https):\/\/online\.mospolytech\.ru\/mod\/(scorm|hvp)\/view\.php\?id=`
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

	DefaultWindowWidth      = 960
	DefaultWindowHeight     = 1080
	DefaultWaitBetweenPages = time.Second
)

// Session is everything one download run needs to know about the user and
// the resource. It is not modified after New.
type Session struct {
	Login     string
	Password  string
	TargetURL string

	LoginURL string
	// LinkPattern is searched for in TargetURL; "^" accepts any link.
	LinkPattern string

	UserAgent        string
	WindowWidth      int
	WindowHeight     int
	Headless         bool
	WaitBetweenPages time.Duration
}

func DefaultSession() Session {
	return Session{
		LoginURL:         DefaultLoginURL,
		LinkPattern:      DefaultLinkPattern,
		UserAgent:        DefaultUserAgent,
		WindowWidth:      DefaultWindowWidth,
		WindowHeight:     DefaultWindowHeight,
		WaitBetweenPages: DefaultWaitBetweenPages,
	}
}

// Timing holds the waits of a run. The fixed delays approximate readiness
// where the site gives no signal to poll for.
type Timing struct {
	ElementTimeout time.Duration
	PollInterval   time.Duration
	FrameSettle    time.Duration
	ScormLoadDelay time.Duration
	Settle         time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		ElementTimeout: 60 * time.Second,
		PollInterval:   250 * time.Millisecond,
		FrameSettle:    time.Second,
		ScormLoadDelay: 10 * time.Second,
		Settle:         time.Second,
	}
}
