// Package debrid defines the common interface of the debrid service clients
// and the file selection helpers they share.
package debrid

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/annatar-tv/annatar/pkg/torrent"
)

// ErrNoResolver is returned by Resolve for services whose stream links are
// direct URLs and don't go through a resolve redirect.
var ErrNoResolver = errors.New("service returns direct stream URLs")

// Auth carries the per-request user credentials for a debrid service.
// IP is the client's origin IP. Some services bind the generated download
// link to the IP that requested it, so the addon forwards the user's IP
// instead of its own.
type Auth struct {
	APIKey string
	IP     string
}

// StreamLink is a single playable file on a debrid service.
// URL is either a direct video URL or a relative resolve path on the addon
// (like "/rd/{apiKey}/{infoHash}/{fileID}") that 302s to the video.
type StreamLink struct {
	URL  string
	Name string
	Size int64
}

// Client is the interface that all debrid service clients implement.
type Client interface {
	// ID is the service identifier used in user configuration.
	ID() string
	// ShortName is the two letter abbreviation shown in stream names.
	ShortName() string
	// Name is the human readable service name.
	Name() string
	// SharedCache says whether the service's availability info is shared
	// across users, so probe results can be reused for everyone.
	SharedCache() bool
	// StreamLinks checks the given info hashes for instantly available files
	// and sends a StreamLink for each playable one. The channel is closed
	// when all hashes were checked or stop is closed. Torrents without a
	// suitable video file are skipped silently.
	StreamLinks(ctx context.Context, auth Auth, infoHashes []string, season, episode int, stop <-chan struct{}) <-chan StreamLink
	// Resolve turns a stream link produced by StreamLinks into the final
	// video URL. Services with direct URLs return ErrNoResolver.
	Resolve(ctx context.Context, auth Auth, infoHash, file string) (string, error)
}

// Cache is the interface the debrid clients use for caching availability
// probes and resolved URLs. Usually backed by Redis, see the db package.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

var videoExtensions = map[string]struct{}{
	"3g2": {}, "3gp": {}, "avi": {}, "flv": {}, "m2ts": {}, "m4v": {},
	"mk3d": {}, "mkv": {}, "mov": {}, "mp2": {}, "mp4": {}, "mpe": {},
	"mpeg": {}, "mpg": {}, "mpv": {}, "ogm": {}, "ts": {}, "webm": {}, "wmv": {},
}

// minVideoSize filters out files that carry a video extension but can't be
// the actual release, like samples and renamed junk some uploaders include.
const minVideoSize = 100 * 1024 * 1024

// IsVideo reports whether the file looks like a playable video.
func IsVideo(path string, size int64) bool {
	dotIndex := strings.LastIndex(path, ".")
	if dotIndex == -1 || dotIndex == len(path)-1 {
		return false
	}
	if size > 0 && size < minVideoSize {
		return false
	}
	ext := strings.ToLower(path[dotIndex+1:])
	_, found := videoExtensions[ext]
	return found
}

// IsTrash reports whether the file is a sample or extra that should never be
// offered as the stream, even when it's the only video in the torrent.
func IsTrash(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "sample") ||
		strings.Contains(lower, "trailer") ||
		strings.Contains(lower, "extras")
}

// File is a single file within a torrent on a debrid service.
type File struct {
	// ID is the service's file identifier, where the service has one
	ID   int64
	Name string
	Size int64
}

// SelectFile picks the file to stream from a torrent's file listing: the
// biggest video file, or for series requests the biggest video file that
// carries the season and episode in its name. The boolean return value
// signals whether a suitable file was found.
func SelectFile(files []File, season, episode int) (File, bool) {
	videos := make([]File, 0, len(files))
	for _, file := range files {
		if IsVideo(file.Name, file.Size) && !IsTrash(file.Name) {
			videos = append(videos, file)
		}
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].Size > videos[j].Size
	})
	for _, file := range videos {
		if season == 0 && episode == 0 {
			return file, true
		}
		meta := torrent.ParseTitle(file.Name)
		if meta.HasSeason(season) && meta.HasEpisode(episode) {
			return file, true
		}
	}
	return File{}, false
}
