package debrid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsVideo(t *testing.T) {
	require.True(t, IsVideo("Fight.Club.1999.1080p.mkv", 0))
	require.True(t, IsVideo("movie.MP4", 8*1024*1024*1024))
	require.False(t, IsVideo("Fight.Club.1999.1080p.nfo", 0))
	require.False(t, IsVideo("README", 0))
	// Video extension but too small to be a release
	require.False(t, IsVideo("fake.mkv", 1024))
	require.False(t, IsVideo("release.mkv", 50*1024*1024))
	require.True(t, IsVideo("release.mkv", 100*1024*1024))
}

func TestIsTrash(t *testing.T) {
	require.True(t, IsTrash("Sample/fight.club.sample.mkv"))
	require.True(t, IsTrash("Friends.S05E10.Trailer.mp4"))
	require.False(t, IsTrash("Fight.Club.1999.1080p.mkv"))
}

func TestSelectFileMovie(t *testing.T) {
	files := []File{
		{ID: 1, Name: "fight.club.sample.mkv", Size: 50 * 1024 * 1024},
		{ID: 2, Name: "Fight.Club.1999.1080p.mkv", Size: 8 * 1024 * 1024 * 1024},
		{ID: 3, Name: "cover.jpg", Size: 100 * 1024},
	}
	file, found := SelectFile(files, 0, 0)
	require.True(t, found)
	require.Equal(t, int64(2), file.ID)
}

func TestSelectFileEpisode(t *testing.T) {
	files := []File{
		{ID: 1, Name: "Friends.S05E09.1080p.mkv", Size: 3 * 1024 * 1024 * 1024},
		{ID: 2, Name: "Friends.S05E10.1080p.mkv", Size: 2 * 1024 * 1024 * 1024},
	}
	file, found := SelectFile(files, 5, 10)
	require.True(t, found)
	require.Equal(t, int64(2), file.ID)

	_, found = SelectFile(files, 5, 11)
	require.False(t, found)
}

func TestSelectFileNoVideos(t *testing.T) {
	files := []File{
		{ID: 1, Name: "release.nfo", Size: 1024},
		{ID: 2, Name: "stub.mkv", Size: 50 * 1024 * 1024},
	}
	_, found := SelectFile(files, 0, 0)
	require.False(t, found)
}
