package torrent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseTitle(t *testing.T) {
	for _, test := range []struct {
		title    string
		expected Meta
	}{
		{
			title: "Friends.1994.S01-S03.1080p.WEB-DL.DDP5.1.x264-GRP",
			expected: Meta{
				Title:      "Friends",
				Years:      []int{1994},
				Seasons:    []int{1, 2, 3},
				Resolution: "1080p",
				Channels:   "5.1",
				Codec:      "x264",
			},
		},
		{
			title: "The Office Season 2-4 COMPLETE 720p",
			expected: Meta{
				Title:      "The Office",
				Seasons:    []int{2, 3, 4},
				Resolution: "720p",
			},
		},
		{
			title: "Friends S04E10 2160p 10bit HDR 7.1 hevc REMUX",
			expected: Meta{
				Title:      "Friends",
				Seasons:    []int{4},
				Episodes:   []int{10},
				Resolution: "4K",
				Channels:   "7.1",
				Codec:      "hevc",
				HDR:        true,
				BitDepth:   10,
				Remux:      true,
			},
		},
		{
			title: "Show.S02E01-E03.1440p.x265",
			expected: Meta{
				Title:      "Show",
				Seasons:    []int{2},
				Episodes:   []int{1, 2, 3},
				Resolution: "QHD",
				Codec:      "x265",
			},
		},
		{
			title: "Some Movie 2019 4K HDR10",
			expected: Meta{
				Title:      "Some Movie",
				Years:      []int{2019},
				Resolution: "4K",
				HDR:        true,
			},
		},
	} {
		t.Run(test.title, func(t *testing.T) {
			test.expected.Raw = test.title
			actual := ParseTitle(test.title)
			if diff := cmp.Diff(test.expected, actual); diff != "" {
				t.Fatalf("parsed meta mismatch (-expected +actual):\n%v", diff)
			}
		})
	}
}

func TestIsSeasonPack(t *testing.T) {
	require.True(t, ParseTitle("Friends S01-S10 COMPLETE 1080p").IsSeasonPack())
	require.True(t, ParseTitle("Friends Season 5 1080p").IsSeasonPack())
	require.False(t, ParseTitle("Friends S05E10 1080p").IsSeasonPack())
	require.False(t, ParseTitle("Some Movie 2019 1080p").IsSeasonPack())
}

func TestMatchesName(t *testing.T) {
	for _, test := range []struct {
		title   string
		name    string
		matches bool
	}{
		{"Friends S01 1080p", "Friends", true},
		{"Fr!eNds S01 1080p", "Friends", true},
		{"friends s01", "FRIENDS", true},
		{"Best Friends S01", "Friends", false},
		{"Friends and Neighbors S01", "Friends", false},
		{"Just Fr1ends 2005 1080p", "Just Friends", false},
		{"Mission.Impossible.1996.1080p", "Mission: Impossible", true},
		{"Completely Different Show S01", "Friends", false},
	} {
		meta := ParseTitle(test.title)
		require.Equal(t, test.matches, meta.MatchesName(test.name),
			"title %q vs name %q", test.title, test.name)
	}
}
