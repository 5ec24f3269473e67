// Package processor consumes indexer search results, resolves their info
// hashes and stores them as scored torrents.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/db"
	"github.com/annatar-tv/annatar/pkg/magnet"
	"github.com/annatar-tv/annatar/pkg/odm"
	"github.com/annatar-tv/annatar/pkg/pubsub"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

// guidLockTTL dedupes processing of the same search result. Indexers return
// the same GUIDs for every search, so most results have been seen before.
const guidLockTTL = 60 * time.Minute

type Processor struct {
	store    *odm.Store
	db       *db.Client
	bus      *pubsub.Bus
	resolver *magnet.Resolver
	logger   *zap.Logger
}

func New(store *odm.Store, dbClient *db.Client, bus *pubsub.Bus, resolver *magnet.Resolver, logger *zap.Logger) *Processor {
	return &Processor{
		store:    store,
		db:       dbClient,
		bus:      bus,
		resolver: resolver,
		logger:   logger,
	}
}

// Run consumes the search result topic until ctx is canceled.
func (p *Processor) Run(ctx context.Context, workers int) {
	p.bus.Consume(ctx, pubsub.TopicTorrentSearchResult, workers, p.handle)
}

func (p *Processor) handle(ctx context.Context, body []byte) {
	var result pubsub.TorrentSearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		p.logger.Error("Couldn't unmarshal search result", zap.Error(err))
		return
	}
	p.Process(ctx, result)
}

// Process stores a single search result if it matches its search criteria.
func (p *Processor) Process(ctx context.Context, result pubsub.TorrentSearchResult) {
	zapFieldGUID := zap.String("guid", result.GUID)
	zapFieldIMDB := zap.String("imdb", result.SearchCriteria.IMDB)

	if result.GUID != "" {
		acquired, err := p.db.TryLock(ctx, "torrent-processor:"+result.GUID, guidLockTTL)
		if err != nil {
			p.logger.Error("Couldn't check result lock", zap.Error(err), zapFieldGUID)
			return
		}
		if !acquired {
			return
		}
	}

	criteria := result.SearchCriteria
	if result.IMDB != "" && criteria.IMDB != "" && result.IMDB != criteria.IMDB {
		p.logger.Debug("Result is for a different media", zap.String("resultIMDB", result.IMDB), zapFieldIMDB)
		return
	}
	meta := torrent.ParseTitle(result.Title)
	// An IMDb ID confirmed by the indexer outweighs the fuzzy name match
	if result.IMDB != criteria.IMDB && !meta.MatchesName(criteria.Query) {
		p.logger.Debug("Result title doesn't match the media name", zap.String("title", result.Title), zapFieldIMDB)
		return
	}

	infoHash := strings.ToUpper(result.InfoHash)
	if infoHash == "" {
		magnetLink, err := p.resolver.Resolve(ctx, result.GUID, result.MagnetLink)
		if err != nil {
			if !errors.Is(err, magnet.ErrNoMagnet) {
				p.logger.Warn("Couldn't resolve magnet link", zap.Error(err), zapFieldGUID)
			}
			return
		}
		var ok bool
		if infoHash, ok = magnet.InfoHash(magnetLink); !ok {
			p.logger.Debug("Resolved magnet link carries no info hash", zapFieldGUID)
			return
		}
	}

	category, ok := torrent.CategoryFromName(criteria.Category)
	if !ok {
		p.logger.Error("Unknown category in search criteria", zap.String("category", criteria.Category))
		return
	}
	if category == torrent.CategoryMovie {
		p.processMovie(ctx, meta, infoHash, result)
	} else {
		p.processShow(ctx, meta, infoHash, result)
	}
}

func (p *Processor) processMovie(ctx context.Context, meta torrent.Meta, infoHash string, result pubsub.TorrentSearchResult) {
	criteria := result.SearchCriteria
	// The name gate already ran in Process, so the score is quality-only:
	// scoring against the torrent's own title keeps IMDb-confirmed results
	// under alternative titles storable.
	score := meta.Score(meta.Title, criteria.Year, 0, 0)
	if score <= 0 {
		return
	}
	added, err := p.store.AddTorrent(ctx, criteria.IMDB, infoHash, score)
	if err != nil {
		p.logger.Error("Couldn't store movie torrent", zap.Error(err), zap.String("infoHash", infoHash))
		return
	}
	if added {
		p.announce(ctx, infoHash, result, 0, 0)
	}
}

func (p *Processor) processShow(ctx context.Context, meta torrent.Meta, infoHash string, result pubsub.TorrentSearchResult) {
	criteria := result.SearchCriteria
	if meta.IsSeasonPack() {
		// Packs are stored under every season they contain, and announced per
		// season so subscribers waiting on a single season wake up too. No
		// score gate here - a pack that names the season always scores
		// positive.
		for _, season := range meta.Seasons {
			score := meta.Score(meta.Title, criteria.Year, season, 0)
			added, err := p.store.AddTorrent(ctx, criteria.IMDB, infoHash, score, season)
			if err != nil {
				p.logger.Error("Couldn't store season pack torrent", zap.Error(err), zap.String("infoHash", infoHash))
				continue
			}
			if added {
				p.announce(ctx, infoHash, result, season, 0)
			}
		}
		return
	}
	for _, season := range meta.Seasons {
		for _, episode := range meta.Episodes {
			score := meta.Score(meta.Title, criteria.Year, season, episode)
			if score <= 0 {
				continue
			}
			added, err := p.store.AddTorrent(ctx, criteria.IMDB, infoHash, score, season, episode)
			if err != nil {
				p.logger.Error("Couldn't store episode torrent", zap.Error(err), zap.String("infoHash", infoHash))
				continue
			}
			if added {
				p.announce(ctx, infoHash, result, season, episode)
			}
		}
	}
}

func (p *Processor) announce(ctx context.Context, infoHash string, result pubsub.TorrentSearchResult, season, episode int) {
	err := p.store.SetTorrentMeta(ctx, odm.Torrent{
		InfoHash: infoHash,
		Title:    result.Title,
		Size:     result.Size,
		Indexer:  result.Indexer,
	})
	if err != nil {
		p.logger.Error("Couldn't store torrent meta", zap.Error(err), zap.String("infoHash", infoHash))
	}
	p.bus.Publish(ctx, pubsub.TopicTorrentAdded, pubsub.TorrentAdded{
		InfoHash: infoHash,
		Title:    result.Title,
		IMDB:     result.SearchCriteria.IMDB,
		Size:     result.Size,
		Indexer:  result.Indexer,
		Category: result.SearchCriteria.Category,
		Season:   season,
		Episode:  episode,
	})
}
