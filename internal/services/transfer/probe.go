package transfer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
)

// ErrLinkGone means the server answered 404; the link is dead and the
// download must not be retried.
var ErrLinkGone = errors.New("link no longer available")

// Probe checks that a direct link still answers and extracts the
// filename and size the server advertises. The filename comes from the
// Content-Disposition header when present, otherwise from the last path
// segment of the final URL after redirects.
func Probe(ctx context.Context, client *http.Client, rawURL string) (filename string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to probe link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", 0, ErrLinkGone
	}
	if resp.StatusCode >= 400 {
		return "", 0, fmt.Errorf("link probe returned status %d", resp.StatusCode)
	}

	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				filename = name
			}
		}
	}
	if filename == "" && resp.Request != nil && resp.Request.URL != nil {
		if base := path.Base(resp.Request.URL.Path); base != "." && base != "/" {
			filename = base
		}
	}

	if resp.ContentLength > 0 {
		size = resp.ContentLength
	}
	return filename, size, nil
}
