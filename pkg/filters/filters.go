// Package filters holds the torrent filters a user can enable in their addon
// configuration. A filter that applies to a torrent removes it from results.
package filters

import (
	"regexp"

	"github.com/annatar-tv/annatar/pkg/torrent"
)

const (
	CategoryResolution   = "Resolution"
	CategoryVideoQuality = "Video Quality"
)

// Filter drops torrents a user doesn't want to see.
type Filter struct {
	ID       string
	Name     string
	Category string
	apply    func(torrent.Meta) bool
}

// Apply reports whether the torrent should be dropped.
func (f Filter) Apply(meta torrent.Meta) bool {
	return f.apply(meta)
}

func resolutionFilter(id, name, resolution string) Filter {
	return Filter{
		ID:       id,
		Name:     name,
		Category: CategoryResolution,
		apply: func(meta torrent.Meta) bool {
			return meta.Resolution == resolution
		},
	}
}

var ytsRx = regexp.MustCompile(`(?i)(YTS|YIFY)`)

var all = []Filter{
	resolutionFilter("480p", "480p", "480p"),
	resolutionFilter("720p", "720p", "720p"),
	resolutionFilter("1080p", "1080p", "1080p"),
	resolutionFilter("qhd", "QHD (1440p)", "QHD"),
	resolutionFilter("4k", "4K (2160p)", "4K"),
	resolutionFilter("5k", "5K (2880p)", "5K"),
	resolutionFilter("8k", "8K (4320p)", "8K"),
	{
		ID:       "unknown_resolution",
		Name:     "Unknown Resolution",
		Category: CategoryResolution,
		apply: func(meta torrent.Meta) bool {
			return meta.Resolution == ""
		},
	},
	{
		ID:       "yts",
		Name:     "YTS",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return ytsRx.MatchString(meta.Raw)
		},
	},
	{
		ID:       "remux",
		Name:     "REMUX",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return meta.Remux
		},
	},
	{
		ID:       "hdr",
		Name:     "HDR",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return meta.HDR
		},
	},
	{
		ID:       "x265",
		Name:     "H.265 (HEVC)",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return meta.Codec == "x265" || meta.Codec == "h265" || meta.Codec == "hevc"
		},
	},
	{
		ID:       "x264",
		Name:     "H.264 (AVC)",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return meta.Codec == "x264" || meta.Codec == "h264" || meta.Codec == "avc"
		},
	},
	{
		ID:       "ten_bit",
		Name:     "10bit",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return meta.BitDepth == 10
		},
	},
	{
		ID:       "5.1",
		Name:     "5.1 surround",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return meta.Channels == "5.1"
		},
	},
	{
		ID:       "7.1",
		Name:     "7.1 surround",
		Category: CategoryVideoQuality,
		apply: func(meta torrent.Meta) bool {
			return meta.Channels == "7.1"
		},
	},
}

// All returns every known filter.
func All() []Filter {
	result := make([]Filter, len(all))
	copy(result, all)
	return result
}

// ByID resolves filter IDs from a user config. Unknown IDs are ignored, a
// stale config must not break the stream response.
func ByID(ids []string) []Filter {
	var result []Filter
	for _, id := range ids {
		for _, f := range all {
			if f.ID == id {
				result = append(result, f)
				break
			}
		}
	}
	return result
}

// AnyApplies reports whether at least one of the filters drops the torrent.
func AnyApplies(active []Filter, meta torrent.Meta) bool {
	for _, f := range active {
		if f.Apply(meta) {
			return true
		}
	}
	return false
}
