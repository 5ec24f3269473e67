package torrent

import (
	"regexp"
	"strconv"
	"strings"
)

// Meta is the metadata that can be parsed out of a raw torrent title like
// "Friends S01-S10 COMPLETE 1080p 5.1 x265".
type Meta struct {
	// Raw is the unmodified title the metadata was parsed from.
	Raw string
	// Title is the name part of the torrent title, with release metadata and separators stripped.
	Title string
	// Years contains all four digit years found in the raw title.
	Years []int
	// Seasons contains all seasons the torrent claims to contain, with ranges like "S01-S10" expanded.
	Seasons []int
	// Episodes contains all episodes the torrent claims to contain, with ranges expanded.
	// A torrent with seasons but no episodes is a season pack.
	Episodes   []int
	Resolution string
	Channels   string
	Codec      string
	HDR        bool
	BitDepth   int
	Remux      bool
}

var (
	yearRx        = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	resolutionRx  = regexp.MustCompile(`(?i)\b(480p|720p|1080p|1440p|2160p|2880p|4320p|qhd|4k|5k|8k)\b`)
	seasonRangeRx = regexp.MustCompile(`(?i)\bS(\d{1,2})\s?-\s?S?(\d{1,2})\b`)
	seasonWordRx  = regexp.MustCompile(`(?i)\bseasons?\s?(\d{1,2})(?:\s?-\s?(\d{1,2}))?\b`)
	seasonEpRx    = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._-]?(?:E(\d{1,4})(?:\s?-\s?E?(\d{1,4}))?)?\b`)
	episodeWordRx = regexp.MustCompile(`(?i)\bepisodes?\s?(\d{1,4})(?:\s?-\s?(\d{1,4}))?\b`)
	// No leading \b, the channels often stick to the codec like "DDP5.1"
	channelsRx    = regexp.MustCompile(`([57])\.1\b`)
	hdrRx         = regexp.MustCompile(`(?i)\bhdr(10)?(\+|plus)?\b`)
	bitDepthRx    = regexp.MustCompile(`(?i)\b(8|10)\s?-?bits?\b`)
	remuxRx       = regexp.MustCompile(`(?i)\bremux\b`)
	codecRx       = regexp.MustCompile(`(?i)\b(x26[45]|h\.?26[45]|hevc|avc|av1|xvid|divx)\b`)
	wordRx        = regexp.MustCompile(`\w+`)
	spaceRx       = regexp.MustCompile(`\s+`)
)

// Canonical resolution names for the aliases found in titles.
var resolutionAliases = map[string]string{
	"480p":  "480p",
	"720p":  "720p",
	"1080p": "1080p",
	"1440p": "QHD",
	"qhd":   "QHD",
	"2160p": "4K",
	"4k":    "4K",
	"2880p": "5K",
	"5k":    "5K",
	"4320p": "8K",
	"8k":    "8K",
}

// ParseTitle parses release metadata out of a raw torrent title.
// It never fails - unparseable parts just stay empty.
func ParseTitle(raw string) Meta {
	meta := Meta{Raw: raw}
	seasons := map[int]bool{}
	episodes := map[int]bool{}

	// The title part ends where the first metadata token starts
	titleEnd := len(raw)
	markStart := func(loc []int) {
		if loc != nil && loc[0] < titleEnd {
			titleEnd = loc[0]
		}
	}

	if loc := resolutionRx.FindStringIndex(raw); loc != nil {
		meta.Resolution = resolutionAliases[strings.ToLower(raw[loc[0]:loc[1]])]
		markStart(loc)
	}
	for _, match := range yearRx.FindAllStringSubmatchIndex(raw, -1) {
		year, _ := strconv.Atoi(raw[match[2]:match[3]])
		meta.Years = append(meta.Years, year)
	}
	markStart(yearRx.FindStringIndex(raw))

	// Season ranges like "S01-S10" and "Season 1-3" first, then single "SxxEyy" tokens.
	// The range endpoints are matched by the single token regex as well, but the
	// sets make that harmless.
	for _, match := range seasonRangeRx.FindAllStringSubmatch(raw, -1) {
		from, _ := strconv.Atoi(match[1])
		to, _ := strconv.Atoi(match[2])
		addRange(seasons, from, to)
	}
	markStart(seasonRangeRx.FindStringIndex(raw))
	for _, match := range seasonWordRx.FindAllStringSubmatch(raw, -1) {
		from, _ := strconv.Atoi(match[1])
		to := from
		if match[2] != "" {
			to, _ = strconv.Atoi(match[2])
		}
		addRange(seasons, from, to)
	}
	markStart(seasonWordRx.FindStringIndex(raw))
	for _, match := range seasonEpRx.FindAllStringSubmatch(raw, -1) {
		season, _ := strconv.Atoi(match[1])
		seasons[season] = true
		if match[2] != "" {
			from, _ := strconv.Atoi(match[2])
			to := from
			if match[3] != "" {
				to, _ = strconv.Atoi(match[3])
			}
			addRange(episodes, from, to)
		}
	}
	markStart(seasonEpRx.FindStringIndex(raw))
	for _, match := range episodeWordRx.FindAllStringSubmatch(raw, -1) {
		from, _ := strconv.Atoi(match[1])
		to := from
		if match[2] != "" {
			to, _ = strconv.Atoi(match[2])
		}
		addRange(episodes, from, to)
	}
	markStart(episodeWordRx.FindStringIndex(raw))

	if match := channelsRx.FindStringSubmatch(raw); match != nil {
		meta.Channels = match[1] + ".1"
		markStart(channelsRx.FindStringIndex(raw))
	}
	if hdrRx.MatchString(raw) {
		meta.HDR = true
		markStart(hdrRx.FindStringIndex(raw))
	}
	if match := bitDepthRx.FindStringSubmatch(raw); match != nil {
		meta.BitDepth, _ = strconv.Atoi(match[1])
		markStart(bitDepthRx.FindStringIndex(raw))
	}
	if remuxRx.MatchString(raw) {
		meta.Remux = true
		markStart(remuxRx.FindStringIndex(raw))
	}
	if match := codecRx.FindStringSubmatch(raw); match != nil {
		meta.Codec = strings.ToLower(strings.Replace(match[1], ".", "", 1))
		markStart(codecRx.FindStringIndex(raw))
	}

	meta.Seasons = sortedKeys(seasons)
	meta.Episodes = sortedKeys(episodes)
	meta.Title = cleanTitle(raw[:titleEnd])
	if meta.Title == "" {
		meta.Title = cleanTitle(raw)
	}
	return meta
}

func addRange(set map[int]bool, from, to int) {
	if to < from {
		from, to = to, from
	}
	// Bogus ranges like "S01-S99" would flood the set
	if to-from > 50 {
		to = from
	}
	for i := from; i <= to; i++ {
		set[i] = true
	}
}

func sortedKeys(set map[int]bool) []int {
	if len(set) == 0 {
		return nil
	}
	result := make([]int, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j-1] > result[j]; j-- {
			result[j-1], result[j] = result[j], result[j-1]
		}
	}
	return result
}

func cleanTitle(s string) string {
	s = strings.NewReplacer(".", " ", "_", " ", "(", " ", ")", " ", "[", " ", "]", " ").Replace(s)
	s = spaceRx.ReplaceAllString(s, " ")
	return strings.Trim(s, " -")
}

// IsSeasonPack reports whether the torrent claims whole seasons without naming episodes.
func (m Meta) IsSeasonPack() bool {
	return len(m.Seasons) > 0 && len(m.Episodes) == 0
}

func (m Meta) HasSeason(season int) bool {
	return containsInt(m.Seasons, season)
}

func (m Meta) HasEpisode(episode int) bool {
	return containsInt(m.Episodes, episode)
}

func (m Meta) HasYear(year int) bool {
	return containsInt(m.Years, year)
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}

// MatchesName reports whether the parsed title is the given media name.
// The match is anchored on both ends so that "Best Friends" doesn't pass for
// "Friends", but it tolerates punctuation and single noise characters between
// word runs, so that "Fr!eNds" passes for "Friends".
func (m Meta) MatchesName(name string) bool {
	words := wordRx.FindAllString(m.Title, -1)
	name = strings.TrimSpace(name)
	if len(words) == 0 || name == "" {
		return false
	}
	quoted := make([]string, len(words))
	for i, word := range words {
		quoted[i] = regexp.QuoteMeta(word)
	}
	pattern := `(?i)^` + strings.Join(quoted, `\W*.?`) + `$`
	matched, err := regexp.MatchString(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
