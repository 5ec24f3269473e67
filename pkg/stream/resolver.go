// Package stream assembles the stream lists served to Stremio: it combines
// the stored torrents with a debrid service's cache into playable links.
package stream

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/db"
	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/filters"
	"github.com/annatar-tv/annatar/pkg/jackett"
	"github.com/annatar-tv/annatar/pkg/odm"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

const (
	// listLimit is the number of stored torrents handed to the debrid probe
	listLimit = 50
	// searchLockTTL guards the initial search window of a media. While held,
	// other requests for the same media don't wait for results again.
	searchLockTTL = time.Hour
)

var pollInterval = time.Second

// Result is a single stream offer, ready to be served to Stremio.
type Result struct {
	URL   string
	Title string
	Name  string
}

type ResolverOptions struct {
	// SearchTimeout is how long the first request for a media waits for the
	// search pipeline to come up with torrents.
	SearchTimeout time.Duration
}

var DefaultResolverOpts = ResolverOptions{
	SearchTimeout: 10 * time.Second,
}

type Resolver struct {
	store         *odm.Store
	db            *db.Client
	searcher      *jackett.Searcher
	searchTimeout time.Duration
	logger        *zap.Logger
}

func NewResolver(opts ResolverOptions, store *odm.Store, dbClient *db.Client, searcher *jackett.Searcher, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:         store,
		db:            dbClient,
		searcher:      searcher,
		searchTimeout: opts.SearchTimeout,
		logger:        logger,
	}
}

// Streams returns the playable streams for a media on the given debrid
// service, best quality first. It triggers the search pipeline, waits for
// first results when the media was never searched before, probes the debrid
// cache and formats the hits.
func (r *Resolver) Streams(ctx context.Context, client debrid.Client, auth debrid.Auth, imdb string, category torrent.Category, season, episode int, active []filters.Filter, maxResults int) ([]Result, error) {
	r.store.RecordStreamRequest(ctx, imdb, season, episode)
	r.searcher.TriggerSearch(ctx, imdb, category, season, episode)

	infoHashes, err := r.listTorrents(ctx, imdb, listLimit, active, category, season, episode)
	if err != nil {
		return nil, err
	}
	if len(infoHashes) == 0 {
		infoHashes, err = r.awaitTorrents(ctx, imdb, listLimit, maxResults, active, category, season, episode)
		if err != nil {
			return nil, err
		}
	}
	if len(infoHashes) == 0 {
		return []Result{}, nil
	}

	links := r.collectLinks(ctx, client, auth, infoHashes, season, episode, maxResults)

	// Best resolution first, bigger file as tie-breaker
	sort.SliceStable(links, func(i, j int) bool {
		rankI := torrent.ResolutionRank(torrent.ParseTitle(links[i].Name).Resolution)
		rankJ := torrent.ResolutionRank(torrent.ParseTitle(links[j].Name).Resolution)
		if rankI != rankJ {
			return rankI > rankJ
		}
		return links[i].Size > links[j].Size
	})

	results := make([]Result, 0, len(links))
	for _, link := range links {
		results = append(results, formatStream(link, client.ShortName()))
	}
	return results, nil
}

func (r *Resolver) listTorrents(ctx context.Context, imdb string, limit int, active []filters.Filter, category torrent.Category, season, episode int) ([]string, error) {
	if category == torrent.CategorySeries {
		return r.store.ListTorrents(ctx, imdb, limit, active, season, episode)
	}
	return r.store.ListTorrents(ctx, imdb, limit, active)
}

// awaitTorrents polls the store for results of a freshly triggered search,
// until want torrents showed up or the search window closes. Whatever was
// found by then is returned. Only the request that wins the lock waits,
// concurrent requests for the same media return empty immediately and get
// results on Stremio's next try.
func (r *Resolver) awaitTorrents(ctx context.Context, imdb string, limit, want int, active []filters.Filter, category torrent.Category, season, episode int) ([]string, error) {
	lockName := fmt.Sprintf("stream_links:%v:%v", imdb, season)
	acquired, err := r.db.TryLock(ctx, lockName, searchLockTTL)
	if err != nil || !acquired {
		return nil, err
	}

	var infoHashes []string
	deadline := time.Now().Add(r.searchTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
		infoHashes, err = r.listTorrents(ctx, imdb, limit, active, category, season, episode)
		if err != nil {
			return nil, err
		}
		if len(infoHashes) >= want {
			return infoHashes, nil
		}
	}
	if len(infoHashes) == 0 {
		r.logger.Debug("No torrents found within the search window", zap.String("imdb", imdb))
	}
	return infoHashes, nil
}

// Hash is a stored torrent with the release title it was indexed under.
type Hash struct {
	InfoHash string `json:"hash"`
	Title    string `json:"title"`
}

// Hashes lists the stored torrents for a media, best score first. Like
// Streams it triggers the search pipeline and waits for first results when
// the media is unknown.
func (r *Resolver) Hashes(ctx context.Context, imdb string, category torrent.Category, season, episode, limit int) ([]Hash, error) {
	r.searcher.TriggerSearch(ctx, imdb, category, season, episode)

	infoHashes, err := r.listTorrents(ctx, imdb, limit, nil, category, season, episode)
	if err != nil {
		return nil, err
	}
	if len(infoHashes) == 0 {
		infoHashes, err = r.awaitTorrents(ctx, imdb, limit, limit, nil, category, season, episode)
		if err != nil {
			return nil, err
		}
	}

	hashes := make([]Hash, 0, len(infoHashes))
	for _, infoHash := range infoHashes {
		title, err := r.store.GetTorrentTitle(ctx, infoHash)
		if err != nil {
			r.logger.Debug("Couldn't get torrent title", zap.Error(err), zap.String("infoHash", infoHash))
		}
		hashes = append(hashes, Hash{InfoHash: infoHash, Title: title})
	}
	return hashes, nil
}

// collectLinks drains the debrid probe, capping each resolution so a flood of
// same-quality releases doesn't crowd out the others.
func (r *Resolver) collectLinks(ctx context.Context, client debrid.Client, auth debrid.Auth, infoHashes []string, season, episode, maxResults int) []debrid.StreamLink {
	perResolution := (maxResults + 2) / 3
	stop := make(chan struct{})
	defer close(stop)

	byResolution := map[string]int{}
	var links []debrid.StreamLink
	for link := range client.StreamLinks(ctx, auth, infoHashes, season, episode, stop) {
		resolution := torrent.ParseTitle(link.Name).Resolution
		if byResolution[resolution] >= perResolution {
			continue
		}
		byResolution[resolution]++
		links = append(links, link)
		if len(links) >= maxResults {
			break
		}
	}
	return links
}
