package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"sentinel_bot/internal/models"
)

// HTTPSource polls a calendar endpoint returning the same JSON array as the file feed.
type HTTPSource struct {
	url    string
	layout string
	client *http.Client
}

func NewHTTPSource(url, layout string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		url:    url,
		layout: layoutOrDefault(layout),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) LoadSnapshot(ctx context.Context) ([]models.EconomicEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrFeedUnavailable, "http: build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrFeedUnavailable, "http: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.Wrapf(ErrFeedUnavailable, "http: read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(ErrFeedUnavailable, fmt.Sprintf("http: status %d: %.200s", resp.StatusCode, body))
	}
	return decodeJSON(body, s.layout, "http")
}
