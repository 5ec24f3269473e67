package jackett

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/annatar-tv/annatar/pkg/cinemeta"
	"github.com/annatar-tv/annatar/pkg/db"
	"github.com/annatar-tv/annatar/pkg/pubsub"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

type WorkerOptions struct {
	// Indexers are the Jackett tracker IDs to fan out to.
	Indexers []string
	// MaxResults is the per-indexer cap of results handed to the processor.
	MaxResults int
	// LockTTL dedupes identical indexer searches across workers.
	LockTTL time.Duration
}

var DefaultWorkerOpts = WorkerOptions{
	Indexers:   []string{"yts", "eztv", "thepiratebay", "therarbg", "torrentgalaxy", "kickasstorrents-ws"},
	MaxResults: 100,
	LockTTL:    time.Hour,
}

// Worker consumes search requests and runs the per-indexer Jackett searches.
// Results are prioritized and published for the torrent processor.
type Worker struct {
	client   *Client
	cinemeta *cinemeta.Client
	db       *db.Client
	bus      *pubsub.Bus
	opts     WorkerOptions
	logger   *zap.Logger
}

func NewWorker(client *Client, cinemetaClient *cinemeta.Client, dbClient *db.Client, bus *pubsub.Bus, opts WorkerOptions, logger *zap.Logger) *Worker {
	return &Worker{
		client:   client,
		cinemeta: cinemetaClient,
		db:       dbClient,
		bus:      bus,
		opts:     opts,
		logger:   logger,
	}
}

// Run consumes the search request topic until ctx is canceled.
func (w *Worker) Run(ctx context.Context, concurrency int) {
	w.bus.Consume(ctx, pubsub.TopicSearchRequest, concurrency, w.handle)
}

func (w *Worker) handle(ctx context.Context, body []byte) {
	var req pubsub.SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.logger.Error("Couldn't unmarshal search request", zap.Error(err))
		return
	}
	category, ok := torrent.CategoryFromName(req.Category)
	if !ok {
		w.logger.Error("Unknown category in search request", zap.String("category", req.Category))
		return
	}
	media, err := w.cinemeta.GetMediaInfo(ctx, category.Name, req.IMDB)
	if err != nil {
		w.logger.Warn("Couldn't look up media for search request", zap.Error(err), zap.String("imdb", req.IMDB))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, indexer := range w.opts.Indexers {
		indexer := indexer
		g.Go(func() error {
			w.searchIndexer(gctx, indexer, media, req, category)
			return nil
		})
	}
	g.Wait()
}

func (w *Worker) searchIndexer(ctx context.Context, indexer string, media cinemeta.MediaInfo, req pubsub.SearchRequest, category torrent.Category) {
	zapFieldIndexer := zap.String("indexer", indexer)
	zapFieldIMDB := zap.String("imdb", req.IMDB)

	acquired, err := w.db.TryLock(ctx, indexer+"-search-processor-"+req.IMDB, w.opts.LockTTL)
	if err != nil {
		w.logger.Error("Couldn't check indexer search lock", zap.Error(err), zapFieldIndexer, zapFieldIMDB)
		return
	}
	if !acquired {
		w.logger.Debug("Indexer was already searched recently", zapFieldIndexer, zapFieldIMDB)
		return
	}

	searchType := "movie"
	if category == torrent.CategorySeries {
		searchType = "tvsearch"
	}
	queries := []Query{
		{Type: searchType, IMDBid: req.IMDB, Category: category.ID, Indexers: []string{indexer}},
		{Type: searchType, Text: media.Name, Category: category.ID, Indexers: []string{indexer}},
	}
	if req.Season > 0 {
		queries = append(queries, Query{
			Type:     searchType,
			Text:     fmt.Sprintf("%v S%02d", media.Name, req.Season),
			Category: category.ID,
			Indexers: []string{indexer},
		})
	}

	resultSets := make([][]SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			results, err := w.client.Search(gctx, query)
			if err != nil {
				w.logger.Warn("Jackett search failed", zap.Error(err), zapFieldIndexer, zapFieldIMDB)
				return nil
			}
			resultSets[i] = results
			return nil
		})
	}
	g.Wait()

	var results []SearchResult
	for _, set := range resultSets {
		results = append(results, set...)
	}
	w.logger.Debug("Jackett searches completed", zap.Int("resultCount", len(results)), zapFieldIndexer, zapFieldIMDB)

	sort.SliceStable(results, func(i, j int) bool {
		return morePromising(media, req.IMDB, req.Season, results[i], results[j])
	})
	if len(results) > w.opts.MaxResults {
		results = results[:w.opts.MaxResults]
	}

	criteria := pubsub.TorrentSearchCriteria{
		IMDB:     req.IMDB,
		Query:    media.Name,
		Category: category.Name,
		Year:     media.Year,
	}
	for _, result := range results {
		resultIMDB := ""
		if result.Imdb != 0 {
			resultIMDB = fmt.Sprintf("tt%07d", result.Imdb)
		}
		w.bus.Publish(ctx, pubsub.TopicTorrentSearchResult, pubsub.TorrentSearchResult{
			Title:          result.Title,
			InfoHash:       strings.ToUpper(result.InfoHash),
			GUID:           result.GUID,
			MagnetLink:     result.MagnetLink(),
			Indexer:        indexer,
			IMDB:           resultIMDB,
			Size:           result.Size,
			SearchCriteria: criteria,
		})
	}
}

// priority rates how promising a search result looks before any expensive
// processing: base 5, minus one each for a name match, a "S05" style season
// marker and a confirmed IMDb ID. Lower is better.
func priority(media cinemeta.MediaInfo, imdb string, season int, result SearchResult) int {
	score := 5
	if torrent.ParseTitle(result.Title).MatchesName(media.Name) {
		score--
	}
	if season > 0 && strings.Contains(result.Title, fmt.Sprintf("S%02d", season)) {
		score--
	}
	if result.Imdb != 0 && fmt.Sprintf("tt%07d", result.Imdb) == imdb {
		score--
	}
	return score
}

// morePromising reports whether a should be processed before b: better
// priority first, bigger size as tie-breaker.
func morePromising(media cinemeta.MediaInfo, imdb string, season int, a, b SearchResult) bool {
	pa := priority(media, imdb, season, a)
	pb := priority(media, imdb, season, b)
	if pa != pb {
		return pa < pb
	}
	return a.Size > b.Size
}
