package jackett

// SearchResult is a single result from Jackett's aggregated Torznab endpoint.
// Jackett returns a lot more fields, only the ones the addon uses are
// declared here.
type SearchResult struct {
	Title     string `json:"Title"`
	GUID      string `json:"Guid"`
	Link      string `json:"Link"`
	Details   string `json:"Details"`
	Tracker   string `json:"Tracker"`
	Category  []int  `json:"Category"`
	Size      int64  `json:"Size"`
	Seeders   int    `json:"Seeders"`
	InfoHash  string `json:"InfoHash"`
	MagnetURI string `json:"MagnetUri"`
	// Imdb is the numeric IMDb ID without the "tt" prefix, 0 when the indexer
	// doesn't know it.
	Imdb int64 `json:"Imdb"`
}

// MagnetLink returns the best link for resolving the torrent's info hash.
func (r SearchResult) MagnetLink() string {
	if r.MagnetURI != "" {
		return r.MagnetURI
	}
	return r.Link
}

type searchResponse struct {
	Results []SearchResult `json:"Results"`
}
