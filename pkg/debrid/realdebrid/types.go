package realdebrid

// TorrentInfo is the relevant subset of a torrent on RealDebrid, from
// "/rest/1.0/torrents/info/{id}".
// Possible status values: magnet_error, magnet_conversion,
// waiting_files_selection, queued, downloading, downloaded, error, virus,
// compressing, uploading, dead.
type TorrentInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	// SHA1 hash of the torrent
	Hash   string `json:"hash"`
	Status string `json:"status"`
	// One download URL per selected file, in file order
	Links []string      `json:"links"`
	Files []TorrentFile `json:"files"`
}

// TorrentFile is a single file within a RealDebrid torrent.
type TorrentFile struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
	// Size in bytes
	Bytes int64 `json:"bytes"`
	// 1 when the file was selected for download
	Selected int `json:"selected"`
}
