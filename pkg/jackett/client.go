// Package jackett searches torrent indexers through a Jackett instance and
// feeds the results into the torrent processor via pub/sub.
package jackett

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Cache is a string cache for Jackett responses. *db.Client implements it.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

type ClientOptions struct {
	BaseURL  string
	APIkey   string
	Timeout  time.Duration
	CacheAge time.Duration
}

func NewClientOpts(baseURL, apiKey string, timeout, cacheAge time.Duration) ClientOptions {
	return ClientOptions{
		BaseURL:  baseURL,
		APIkey:   apiKey,
		Timeout:  timeout,
		CacheAge: cacheAge,
	}
}

var DefaultClientOpts = ClientOptions{
	BaseURL:  "http://localhost:9117",
	Timeout:  10 * time.Second,
	CacheAge: time.Hour,
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      Cache
	cacheAge   time.Duration
	logger     *zap.Logger
}

func NewClient(opts ClientOptions, cache Cache, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIkey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      cache,
		cacheAge:   opts.CacheAge,
		logger:     logger,
	}
}

// Query is one search against the aggregated "all" endpoint, restricted to
// specific indexers.
type Query struct {
	// Type is the Torznab search type: "movie", "tvsearch" or "search".
	Type string
	// Text is the free text query, mutually exclusive with IMDBid in practice.
	Text string
	// IMDBid includes the "tt" prefix.
	IMDBid string
	// Category is the Torznab category ID (2000 movies, 5000 TV).
	Category int
	// Indexers are Jackett tracker IDs.
	Indexers []string
}

// Search runs one query against Jackett. Responses are cached, Jackett itself
// is slow because it scrapes the actual indexers.
func (c *Client) Search(ctx context.Context, query Query) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("t", query.Type)
	if query.IMDBid != "" {
		params.Set("imdbid", query.IMDBid)
	}
	if query.Text != "" {
		params.Set("q", query.Text)
	}
	if query.Category != 0 {
		params.Set("Category", strconv.Itoa(query.Category))
	}
	for _, indexer := range query.Indexers {
		params.Add("Tracker[]", indexer)
	}
	reqURL := c.baseURL + "/api/v2.0/indexers/all/results?" + params.Encode()

	cacheKey := fmt.Sprintf("jackett:%x", sha256.Sum256([]byte(reqURL)))
	if cached, found, err := c.cache.Get(ctx, cacheKey); err != nil {
		c.logger.Error("Couldn't read Jackett cache", zap.Error(err))
	} else if found {
		var response searchResponse
		if err = json.Unmarshal([]byte(cached), &response); err == nil {
			return response.Results, nil
		}
		c.logger.Error("Couldn't unmarshal cached Jackett response", zap.Error(err))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("Couldn't create GET request: %v", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Couldn't send GET request to Jackett: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad HTTP response status: %v (GET request to '%v')", res.Status, c.baseURL)
	}
	resBody, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("Couldn't read response body: %v", err)
	}

	var response searchResponse
	if err = json.Unmarshal(resBody, &response); err != nil {
		return nil, fmt.Errorf("Couldn't unmarshal Jackett response: %v", err)
	}

	if err = c.cache.Set(ctx, cacheKey, string(resBody), c.cacheAge); err != nil {
		c.logger.Error("Couldn't cache Jackett response", zap.Error(err))
	}
	return response.Results, nil
}
