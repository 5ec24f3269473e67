package pubsub

// Topic is a Redis pub/sub channel name (namespaced by the bus).
type Topic string

const (
	TopicSearchRequest       Topic = "events:v1:search:request"
	TopicTorrentSearchResult Topic = "events:v1:torrent:search_result"
	TopicTorrentAdded        Topic = "events:v1:torrent:added"
)

// SearchRequest asks the indexer workers to search for a media.
type SearchRequest struct {
	IMDB     string `json:"imdb"`
	Category string `json:"category"`
	Season   int    `json:"season,omitempty"`
	Episode  int    `json:"episode,omitempty"`
}

// TorrentSearchCriteria carries the request a search result was found for, so
// the processor can score the result without another metadata lookup.
type TorrentSearchCriteria struct {
	IMDB     string `json:"imdb"`
	Query    string `json:"query"`
	Category string `json:"category"`
	Year     int    `json:"year"`
}

// TorrentSearchResult is a single indexer result on its way to the processor.
// IMDB is the media the indexer claims the result is for, empty when the
// indexer doesn't report one.
type TorrentSearchResult struct {
	Title          string                `json:"title"`
	InfoHash       string                `json:"info_hash"`
	GUID           string                `json:"guid"`
	MagnetLink     string                `json:"magnet_link"`
	Indexer        string                `json:"indexer"`
	IMDB           string                `json:"imdb,omitempty"`
	Size           int64                 `json:"size"`
	SearchCriteria TorrentSearchCriteria `json:"search_criteria"`
}

// TorrentAdded announces a newly stored torrent. Subscribers must re-read the
// store on wake, the event itself is best-effort.
type TorrentAdded struct {
	InfoHash string `json:"info_hash"`
	Title    string `json:"title"`
	IMDB     string `json:"imdb"`
	Size     int64  `json:"size"`
	Indexer  string `json:"indexer"`
	Category string `json:"category"`
	Season   int    `json:"season,omitempty"`
	Episode  int    `json:"episode,omitempty"`
}
