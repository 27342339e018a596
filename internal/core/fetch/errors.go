package fetch

import (
	"fmt"
	"net/http"

	"github.com/ossanalytics/ossanalytics/internal/core/cache"
)

// ErrInvalidURL is returned before any I/O for URLs that are not https.
var ErrInvalidURL = cache.ErrInvalidURL

// FetchError reports a request that ended without a 2xx response.
type FetchError struct {
	URL      string
	Status   int
	Attempts int
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	text := http.StatusText(e.Status)
	if text == "" {
		text = "unexpected status"
	}
	if e.Attempts > 1 {
		return fmt.Sprintf("failed to fetch %s: %d %s after %d attempts", e.URL, e.Status, text, e.Attempts)
	}
	return fmt.Sprintf("failed to fetch %s: %d %s", e.URL, e.Status, text)
}
