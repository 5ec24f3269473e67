package torrent

// Resolution rank as packed into the match score. Higher is better.
var resolutionRanks = map[string]int{
	"":      0,
	"480p":  1,
	"720p":  2,
	"1080p": 3,
	"QHD":   4,
	"4K":    5,
	"5K":    6,
	"8K":    7,
}

var ranksResolution = map[int]string{
	0: "",
	1: "480p",
	2: "720p",
	3: "1080p",
	4: "QHD",
	5: "4K",
	6: "5K",
	7: "8K",
}

// MismatchScore is returned when the torrent title doesn't match the media
// name at all. It's far below every score a matching torrent can get.
const MismatchScore = -1000

// ScoreSeries rates how well the torrent's seasons/episodes fit the requested
// season/episode. A request with season and episode 0 is a movie request.
//
// The ladder, first match wins:
//
//	 3: multi season pack containing the season
//	 2: season pack containing the season
//	 1: contains the exact episode
//	 0: movie request and no series markers in the title
//	-1: no verdict (e.g. series request but no season markers)
//	-10: right season, wrong episode
//	-100: wrong season
func (m Meta) ScoreSeries(season, episode int) int {
	switch {
	case season == 0 && episode == 0 && len(m.Seasons) == 0 && len(m.Episodes) == 0:
		return 0
	case len(m.Seasons) > 1 && m.HasSeason(season):
		return 3
	case m.HasSeason(season) && len(m.Episodes) == 0:
		return 2
	case m.HasSeason(season) && m.HasEpisode(episode):
		return 1
	case m.HasSeason(season) && len(m.Episodes) > 0:
		return -10
	case len(m.Seasons) > 0 && season > 0 && !m.HasSeason(season):
		return -100
	default:
		return -1
	}
}

// Score packs the match quality into a single comparable int:
//
//	series fit (clamped to [-4,3])  << 20
//	resolution rank (0..6)          << 14
//	audio rank (none/5.1/7.1)       << 8
//	year match (0/1)                << 6
//
// The series fit dominates the resolution, the resolution dominates the
// audio, the audio dominates the year. Torrents whose title doesn't match
// the media name get MismatchScore.
func (m Meta) Score(name string, year, season, episode int) int {
	if !m.MatchesName(name) {
		return MismatchScore
	}
	series := m.ScoreSeries(season, episode)
	if series > 3 {
		series = 3
	} else if series < -4 {
		series = -4
	}
	score := series << 20
	score |= resolutionRanks[m.Resolution] << 14
	score |= m.audioRank() << 8
	if m.HasYear(year) {
		score |= 1 << 6
	}
	return score
}

func (m Meta) audioRank() int {
	switch m.Channels {
	case "5.1":
		return 1
	case "7.1":
		return 2
	}
	return 0
}

// ResolutionRank returns the rank of a canonical resolution name, for sorting.
func ResolutionRank(resolution string) int {
	return resolutionRanks[resolution]
}

// ResolutionFromScore extracts the canonical resolution name packed into a
// match score by Score.
func ResolutionFromScore(score int) string {
	return ranksResolution[(score>>14)&0x7]
}
