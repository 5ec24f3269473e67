package jackett

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/cinemeta"
	"github.com/annatar-tv/annatar/pkg/db"
	"github.com/annatar-tv/annatar/pkg/pubsub"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

// Searcher triggers indexer searches for a media, with a freshness window
// that keeps popular lookups from hammering the indexers.
type Searcher struct {
	cinemeta *cinemeta.Client
	db       *db.Client
	bus      *pubsub.Bus
	// freshness is the base window during which a media is not searched again
	freshness time.Duration
	logger    *zap.Logger
}

func NewSearcher(cinemetaClient *cinemeta.Client, dbClient *db.Client, bus *pubsub.Bus, freshness time.Duration, logger *zap.Logger) *Searcher {
	return &Searcher{
		cinemeta:  cinemetaClient,
		db:        dbClient,
		bus:       bus,
		freshness: freshness,
		logger:    logger,
	}
}

// TriggerSearch publishes a search request for the media unless results are
// still fresh. The freshness window doubles with every year of media age, old
// titles rarely get new uploads.
func (s *Searcher) TriggerSearch(ctx context.Context, imdb string, category torrent.Category, season, episode int) {
	media, err := s.cinemeta.GetMediaInfo(ctx, category.Name, imdb)
	if err != nil {
		s.logger.Warn("Couldn't look up media for search trigger", zap.Error(err), zap.String("imdb", imdb))
		return
	}

	acquired, err := s.db.TryLock(ctx, "search:"+imdb, s.searchWindow(media.Year))
	if err != nil {
		s.logger.Error("Couldn't check search freshness", zap.Error(err), zap.String("imdb", imdb))
		return
	}
	if !acquired {
		s.logger.Debug("Search results are still fresh", zap.String("imdb", imdb), zap.Int("releaseYear", media.Year))
		return
	}

	s.bus.Publish(ctx, pubsub.TopicSearchRequest, pubsub.SearchRequest{
		IMDB:     imdb,
		Category: category.Name,
		Season:   season,
		Episode:  episode,
	})
}

func (s *Searcher) searchWindow(releaseYear int) time.Duration {
	age := 0
	if releaseYear > 0 {
		age = time.Now().UTC().Year() - releaseYear
	}
	if age < 0 {
		age = 0
	}
	// Cap the exponent, beyond this the window is "pretty much forever" anyway
	if age > 12 {
		age = 12
	}
	return s.freshness * (1 << uint(age))
}
