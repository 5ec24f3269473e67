// Package cinemeta looks up media names and release years on Stremio's
// Cinemeta catalog.
package cinemeta

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// MediaInfo is the part of a Cinemeta meta object the addon cares about.
type MediaInfo struct {
	ID   string
	Type string
	Name string
	// Year is the *last* year in the release info. For an ended show that's
	// the final year, for an ongoing show ("2000-") it's 0.
	Year int
}

// Cache is the cache for Cinemeta lookups. Implementations handle expiry
// themselves.
type Cache interface {
	Set(key string, info MediaInfo) error
	Get(key string) (MediaInfo, bool, error)
}

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
}

func NewClientOpts(baseURL string, timeout time.Duration) ClientOptions {
	return ClientOptions{
		BaseURL: baseURL,
		Timeout: timeout,
	}
}

var DefaultClientOpts = ClientOptions{
	BaseURL: "https://v3-cinemeta.strem.io",
	Timeout: 5 * time.Second,
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

func NewClient(opts ClientOptions, cache Cache, logger *zap.Logger) *Client {
	return &Client{
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		cache:  cache,
		logger: logger,
	}
}

// GetMediaInfo looks up name and year for an IMDb ID.
// mediaType is "movie" or "series".
func (c *Client) GetMediaInfo(ctx context.Context, mediaType, imdbID string) (MediaInfo, error) {
	cacheKey := "cinemeta:" + mediaType + ":" + imdbID
	if info, found, err := c.cache.Get(cacheKey); err != nil {
		c.logger.Error("Couldn't read Cinemeta cache", zap.Error(err), zap.String("imdbID", imdbID))
	} else if found {
		return info, nil
	}

	reqURL := c.baseURL + "/meta/" + mediaType + "/" + imdbID + ".json"
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("Couldn't create GET request: %v", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("Couldn't send GET request to Cinemeta: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return MediaInfo{}, fmt.Errorf("bad HTTP response status: %v (GET request to '%v')", res.Status, reqURL)
	}
	resBody, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("Couldn't read response body: %v", err)
	}

	meta := gjson.GetBytes(resBody, "meta")
	if !meta.Exists() {
		return MediaInfo{}, fmt.Errorf("Couldn't find meta in Cinemeta response for %v", imdbID)
	}
	name := meta.Get("name").String()
	if name == "" {
		return MediaInfo{}, fmt.Errorf("Couldn't find name in Cinemeta response for %v", imdbID)
	}
	info := MediaInfo{
		ID:   imdbID,
		Type: mediaType,
		Name: name,
		Year: releaseYear(meta.Get("releaseInfo").String()),
	}

	if err = c.cache.Set(cacheKey, info); err != nil {
		c.logger.Error("Couldn't cache Cinemeta result", zap.Error(err), zap.String("imdbID", imdbID))
	}
	return info, nil
}

var nonDigitRx = regexp.MustCompile(`\D`)

// Cinemeta year ranges use an en-dash instead of a hyphen, so instead of
// splitting on "-" we split on anything that's not a digit and take the last
// part. "2000–2014" gives 2014, "2000–" (still running) gives 0.
func releaseYear(releaseInfo string) int {
	if releaseInfo == "" {
		return 0
	}
	parts := nonDigitRx.Split(releaseInfo, -1)
	year, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return year
}
