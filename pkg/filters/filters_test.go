package filters

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annatar-tv/annatar/pkg/torrent"
)

func TestByID(t *testing.T) {
	active := ByID([]string{"4k", "yts", "ten_bit", "unknown_resolution"})
	require.Len(t, active, 4)
	require.Equal(t, "4k", active[0].ID)
	require.Equal(t, "yts", active[1].ID)

	// Unknown IDs from a stale config are ignored
	active = ByID([]string{"4k", "betamax"})
	require.Len(t, active, 1)
}

func TestApply(t *testing.T) {
	for _, test := range []struct {
		id      string
		title   string
		applies bool
	}{
		{"480p", "Fight.Club.1999.480p.mkv", true},
		{"480p", "Fight.Club.1999.1080p.mkv", false},
		{"4k", "Fight.Club.1999.2160p.mkv", true},
		{"unknown_resolution", "Fight.Club.1999.mkv", true},
		{"unknown_resolution", "Fight.Club.1999.720p.mkv", false},
		{"yts", "Fight Club 1999 1080p YIFY", true},
		{"yts", "Fight Club (1999) [1080p] [YTS.AM]", true},
		{"yts", "Fight.Club.1999.1080p.WEB-DL", false},
		{"x265", "Fight.Club.1999.1080p.x265.mkv", true},
		{"x265", "Fight.Club.1999.1080p.HEVC.mkv", true},
		{"x265", "Fight.Club.1999.1080p.x264.mkv", false},
		{"x264", "Fight.Club.1999.1080p.h.264.mkv", true},
		{"ten_bit", "Fight.Club.1999.2160p.10bit.mkv", true},
		{"ten_bit", "Fight.Club.1999.2160p.mkv", false},
		{"remux", "Fight.Club.1999.2160p.REMUX.mkv", true},
		{"hdr", "Fight.Club.1999.2160p.HDR10.mkv", true},
		{"5.1", "Fight.Club.1999.1080p.DDP5.1.mkv", true},
	} {
		active := ByID([]string{test.id})
		require.Len(t, active, 1, "filter %v", test.id)
		meta := torrent.ParseTitle(test.title)
		require.Equal(t, test.applies, active[0].Apply(meta),
			"filter %v on %q", test.id, test.title)
	}
}
