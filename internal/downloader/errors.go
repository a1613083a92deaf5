package downloader

import "errors"

var (
	ErrInvalidLink        = errors.New("invalid link to download from")
	ErrLoginFailed        = errors.New("login failed, check login and password")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrAmbiguousContent   = errors.New("more than one content type matched")
	ErrElementTimeout     = errors.New("timed out waiting for element")
)
