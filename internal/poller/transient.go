package poller

import (
	"errors"
	"time"

	"google.golang.org/api/googleapi"
)

// classifyCall inspects an error from a Gmail call and reports whether it
// is a cursor-invalid 404, a transient failure worth retrying (429/5xx),
// and the exact Retry-After duration if the provider sent one (spec §4.7).
func classifyCall(err error) (notFound, transient, rateLimited bool, retryAfter time.Duration) {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false, false, false, 0
	}

	switch {
	case apiErr.Code == 404:
		return true, false, false, 0
	case apiErr.Code == 429:
		return false, true, true, retryAfterFrom(apiErr)
	case apiErr.Code >= 500 && apiErr.Code < 600:
		return false, true, false, retryAfterFrom(apiErr)
	default:
		return false, false, false, 0
	}
}

// retryAfterFrom reads the Retry-After header (integer seconds) from a
// googleapi error, honored exactly per spec §4.7.
func retryAfterFrom(apiErr *googleapi.Error) time.Duration {
	if apiErr.Header == nil {
		return 0
	}
	raw := apiErr.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := parsePositiveInt(raw)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

var errNotANumber = errors.New("poller: not a number")
