package retry

import (
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

type condition uint8

const (
	serverError condition = 1 << iota
	gatewayError
	connectFailure
	conflict
)

var conditionNames = map[string]condition{
	"5xx":             serverError,
	"gateway-error":   gatewayError,
	"connect-failure": connectFailure,
	"retriable-4xx":   conflict,
}

// On decides which responses and transport errors are worth another attempt.
// The vocabulary follows envoy's x-envoy-retry-on header.
type On struct {
	conditions  condition
	statusCodes []int
}

func DefaultOn() *On {
	return &On{conditions: gatewayError | connectFailure | conflict}
}

// ParseOn reads a comma separated list of condition names and status codes,
// e.g. "gateway-error,connect-failure,429".
func ParseOn(s string) (*On, error) {
	o := &On{}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if c, ok := conditionNames[field]; ok {
			o.conditions |= c
			continue
		}
		code, err := strconv.Atoi(field)
		if err != nil || code < 100 || code > 599 {
			return nil, xerrors.Errorf("invalid retry condition: %q", field)
		}
		o.statusCodes = append(o.statusCodes, code)
	}
	return o, nil
}

func (o *On) has(c condition) bool {
	return o.conditions&c != 0
}

// timeout reports whether an attempt that ran out of time is retried, the
// way a 504 would be.
func (o *On) timeout() bool {
	return o.has(serverError) || o.has(gatewayError) || slices.Contains(o.statusCodes, http.StatusGatewayTimeout)
}

func (o *On) Response(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case o.has(serverError) && code >= 500 && code < 600:
		return true
	case o.has(gatewayError) && code >= 502 && code <= 504:
		return true
	case o.has(conflict) && code == http.StatusConflict:
		return true
	}
	return slices.Contains(o.statusCodes, code)
}

// Error reports whether a transport error looks like the upstream never
// answered: a refused dial, a reset or a temporary network error.
func (o *On) Error(err error) bool {
	if !o.has(connectFailure) && !o.has(serverError) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	type temporary interface{ Temporary() bool }
	var terr temporary
	return errors.As(err, &terr) && terr.Temporary()
}
