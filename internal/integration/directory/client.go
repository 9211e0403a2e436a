package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/duespay/duespay/internal/config"
	"github.com/duespay/duespay/internal/domain/subscriber"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
	gocache "github.com/patrickmn/go-cache"
)

// Client is the read-only HTTP client for the external member directory.
// Lookups are cached; a subscriber's name and address change rarely and
// the billing run reads each one at most once per day.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	cache      *gocache.Cache
	logger     *logger.Logger
}

// NewClient builds the directory client. It implements
// subscriber.Repository.
func NewClient(cfg config.DirectoryConfig, log *logger.Logger) subscriber.Repository {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.RetryWaitMin = 200 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.HTTPClient.Timeout = 10 * time.Second
	httpClient.Logger = log.GetRetryableHTTPLogger()

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		cache:      gocache.New(ttl, 2*ttl),
		logger:     log,
	}
}

func (c *Client) Get(ctx context.Context, id string) (*subscriber.Subscriber, error) {
	if cached, ok := c.cache.Get(id); ok {
		sub := cached.(subscriber.Subscriber)
		return &sub, nil
	}

	url := fmt.Sprintf("%s/api/v1/members/%s", c.baseURL, id)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to build directory request").
			Mark(ierr.ErrInternal)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Directory lookup failed").
			WithReportableDetails(map[string]any{"subscriber_id": id}).
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ierr.NewErrorf("subscriber %s not found in directory", id).
			Mark(ierr.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ierr.NewErrorf("directory returned status %d", resp.StatusCode).
			WithReportableDetails(map[string]any{"subscriber_id": id}).
			Mark(ierr.ErrHTTPClient)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read directory response").
			Mark(ierr.ErrHTTPClient)
	}

	var sub subscriber.Subscriber
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to decode directory response").
			Mark(ierr.ErrHTTPClient)
	}
	if sub.ID == "" {
		sub.ID = id
	}

	c.cache.Set(id, sub, gocache.DefaultExpiration)
	return &sub, nil
}
