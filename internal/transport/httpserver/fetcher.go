package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kaleido-search/kaleido/internal/domain"
)

// DefaultMaxImageBytes caps downloaded image size.
const DefaultMaxImageBytes = 10 << 20 // 10 MiB

// ImageFetcher downloads query images from caller-provided URLs with a
// bounded timeout and size cap.
type ImageFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewImageFetcher creates a fetcher. Zero values select the defaults
// (10s timeout, 10 MiB cap).
func NewImageFetcher(timeout time.Duration, maxBytes int64) *ImageFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads the image at rawURL. Fetch failures are client errors:
// the URL came from the request.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid image url: %w", domain.ErrInvalidQuery)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", domain.ErrInvalidQuery)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %v: %w", err, domain.ErrInvalidQuery)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d: %w", resp.StatusCode, domain.ErrInvalidQuery)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %v: %w", err, domain.ErrInvalidQuery)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", f.maxBytes, domain.ErrInvalidQuery)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body: %w", domain.ErrInvalidQuery)
	}

	return data, nil
}
