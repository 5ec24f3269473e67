// Package odm is the Redis object model for torrents: sorted sets of info
// hashes scored by match quality, plus a metadata hash per torrent. The sets
// are the system of record - pub/sub events are only wake-up signals.
package odm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/db"
	"github.com/annatar-tv/annatar/pkg/filters"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

// TorrentTTL is how long stored torrents stay listable. Every write refreshes it.
const TorrentTTL = 8 * 7 * 24 * time.Hour

const streamRequestHLL = "stream_request"

// Torrent is a stored torrent with its metadata fields.
type Torrent struct {
	InfoHash string
	Title    string
	Size     int64
	Indexer  string
}

type Store struct {
	db     *db.Client
	logger *zap.Logger
}

func NewStore(dbClient *db.Client, logger *zap.Logger) *Store {
	return &Store{
		db:     dbClient,
		logger: logger,
	}
}

// TorrentsKey builds the sorted set key for a media. Pass no extra ints for a
// movie, the season for a season pack, season and episode for an episode.
func (s *Store) TorrentsKey(imdb string, se ...int) string {
	parts := []string{"torrents", "v1", imdb}
	for _, n := range se {
		parts = append(parts, strconv.Itoa(n))
	}
	return s.db.Key(parts...)
}

func (s *Store) metaKey(infoHash string) string {
	return s.db.Key("torrent", "v1", "meta", strings.ToUpper(infoHash))
}

// AddTorrent stores the info hash under the media key with the given match
// score. It reports whether the hash was newly added; an existing entry keeps
// its original score.
func (s *Store) AddTorrent(ctx context.Context, imdb, infoHash string, score int, se ...int) (bool, error) {
	infoHash = strings.ToUpper(infoHash)
	key := s.TorrentsKey(imdb, se...)
	added, err := s.db.Redis.ZAddNX(ctx, key, &redis.Z{
		Score:  float64(score),
		Member: infoHash,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("Couldn't add torrent to %v: %v", key, err)
	}
	if err = s.db.Redis.Expire(ctx, key, TorrentTTL).Err(); err != nil {
		s.logger.Error("Couldn't refresh torrent set TTL", zap.Error(err), zap.String("key", key))
	}
	return added > 0, nil
}

// SetTorrentMeta writes the metadata hash for a torrent.
func (s *Store) SetTorrentMeta(ctx context.Context, t Torrent) error {
	key := s.metaKey(t.InfoHash)
	err := s.db.Redis.HSet(ctx, key,
		"title", t.Title,
		"size", strconv.FormatInt(t.Size, 10),
		"indexer", t.Indexer,
	).Err()
	if err != nil {
		return fmt.Errorf("Couldn't set torrent meta %v: %v", key, err)
	}
	if err = s.db.Redis.Expire(ctx, key, TorrentTTL).Err(); err != nil {
		s.logger.Error("Couldn't refresh torrent meta TTL", zap.Error(err), zap.String("key", key))
	}
	return nil
}

// GetTorrent reads the metadata hash for a stored info hash.
// The bool is false when no metadata exists (anymore).
func (s *Store) GetTorrent(ctx context.Context, infoHash string) (Torrent, bool, error) {
	fields, err := s.db.Redis.HGetAll(ctx, s.metaKey(infoHash)).Result()
	if err != nil {
		return Torrent{}, false, fmt.Errorf("Couldn't get torrent meta for %v: %v", infoHash, err)
	}
	if len(fields) == 0 || fields["title"] == "" {
		return Torrent{}, false, nil
	}
	size, _ := strconv.ParseInt(fields["size"], 10, 64)
	return Torrent{
		InfoHash: strings.ToUpper(infoHash),
		Title:    fields["title"],
		Size:     size,
		Indexer:  fields["indexer"],
	}, true, nil
}

// GetTorrentTitle reads just the stored title for an info hash.
func (s *Store) GetTorrentTitle(ctx context.Context, infoHash string) (string, error) {
	title, err := s.db.Redis.HGet(ctx, s.metaKey(infoHash), "title").Result()
	if err == redis.Nil {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("Couldn't get torrent title for %v: %v", infoHash, err)
	}
	return title, nil
}

// ListTorrents returns stored info hashes for the media, best match first.
// For an episode request the season key is merged in as well, so season packs
// show up next to exact episodes. Torrents whose title trips one of the
// active filters are dropped, as are malformed hashes.
func (s *Store) ListTorrents(ctx context.Context, imdb string, limit int, active []filters.Filter, se ...int) ([]string, error) {
	keys := []string{s.TorrentsKey(imdb, se...)}
	if len(se) == 2 {
		keys = append(keys, s.TorrentsKey(imdb, se[0]))
	}

	var entries []redis.Z
	seen := map[string]bool{}
	for _, key := range keys {
		zs, err := s.db.Redis.ZRevRangeWithScores(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("Couldn't list torrents from %v: %v", key, err)
		}
		for _, z := range zs {
			member, ok := z.Member.(string)
			if !ok || seen[member] {
				continue
			}
			seen[member] = true
			entries = append(entries, redis.Z{Score: z.Score, Member: member})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	result := make([]string, 0, limit)
	for _, entry := range entries {
		if len(result) == limit {
			break
		}
		infoHash := entry.Member.(string)
		if len(infoHash) != 40 {
			continue
		}
		if len(active) > 0 {
			title, err := s.GetTorrentTitle(ctx, infoHash)
			if err != nil {
				s.logger.Error("Couldn't look up torrent title for filtering", zap.Error(err), zap.String("infoHash", infoHash))
			} else if filters.AnyApplies(active, torrent.ParseTitle(title)) {
				continue
			}
		}
		result = append(result, infoHash)
	}
	return result, nil
}

// RecordStreamRequest counts a unique stream request in the HyperLogLog.
func (s *Store) RecordStreamRequest(ctx context.Context, imdb string, season, episode int) {
	value := fmt.Sprintf("%v:%v:%v", imdb, season, episode)
	if err := s.db.PFAdd(ctx, streamRequestHLL, value); err != nil {
		s.logger.Error("Couldn't record stream request", zap.Error(err), zap.String("imdb", imdb))
	}
}

// UniqueStreamRequests returns the approximate number of distinct stream
// requests ever seen.
func (s *Store) UniqueStreamRequests(ctx context.Context) (int64, error) {
	return s.db.PFCount(ctx, streamRequestHLL)
}
