package magnet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoMagnet is returned when a download link is known to not lead to a
// magnet link. Failed resolutions are cached, so this also covers links that
// failed recently.
var ErrNoMagnet = errors.New("no magnet link behind download link")

// resolveCacheAge matches the torrent TTL: as long as a torrent is listable
// its resolved magnet link stays valid.
const resolveCacheAge = 8 * 7 * 24 * time.Hour

// Cache is a string cache for resolved links, keyed by result GUID.
// *db.Client implements it.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

type ResolverOptions struct {
	Timeout time.Duration
}

var DefaultResolverOpts = ResolverOptions{
	Timeout: 10 * time.Second,
}

// Resolver turns indexer download links into magnet links. Jackett answers
// such links with a redirect to the magnet link, so a single request without
// following the redirect is enough.
type Resolver struct {
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

func NewResolver(opts ResolverOptions, cache Cache, logger *zap.Logger) *Resolver {
	return &Resolver{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cache:  cache,
		logger: logger,
	}
}

// Resolve returns the magnet link behind a download link. Links that already
// are magnet links are returned as is. Results, including failures, are
// cached by GUID so an indexer is only hit once per result.
func (r *Resolver) Resolve(ctx context.Context, guid, link string) (string, error) {
	if strings.HasPrefix(link, "magnet:") {
		return link, nil
	}
	if link == "" {
		return "", ErrNoMagnet
	}

	cacheKey := "magnet:resolve:" + guid
	cached, found, err := r.cache.Get(ctx, cacheKey)
	if err != nil {
		r.logger.Error("Couldn't read magnet resolve cache", zap.Error(err), zap.String("guid", guid))
	} else if found {
		if cached == "" {
			return "", ErrNoMagnet
		}
		return cached, nil
	}

	magnetLink, err := r.fetch(ctx, link)
	if err != nil {
		// Cache the failure, these links don't fix themselves
		if cacheErr := r.cache.Set(ctx, cacheKey, "", resolveCacheAge); cacheErr != nil {
			r.logger.Error("Couldn't cache magnet resolve failure", zap.Error(cacheErr), zap.String("guid", guid))
		}
		return "", err
	}
	if err = r.cache.Set(ctx, cacheKey, magnetLink, resolveCacheAge); err != nil {
		r.logger.Error("Couldn't cache resolved magnet link", zap.Error(err), zap.String("guid", guid))
	}
	return magnetLink, nil
}

func (r *Resolver) fetch(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return "", fmt.Errorf("Couldn't create GET request: %v", err)
	}
	res, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Couldn't send GET request: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 300 || res.StatusCode > 399 {
		return "", ErrNoMagnet
	}
	location := res.Header.Get("Location")
	if !strings.HasPrefix(location, "magnet:") {
		return "", ErrNoMagnet
	}
	return location, nil
}
