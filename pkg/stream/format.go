package stream

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

// formatStream renders a stream link the way it shows up in Stremio: the
// file name plus the parsed release metadata as the title, and a short
// service/quality tag as the name.
func formatStream(link debrid.StreamLink, shortName string) Result {
	meta := torrent.ParseTitle(link.Name)

	var parts []string
	if meta.Resolution != "" {
		parts = append(parts, "📺"+meta.Resolution)
	}
	if meta.BitDepth != 0 {
		parts = append(parts, fmt.Sprintf("%vbit", meta.BitDepth))
	}
	if meta.HDR {
		parts = append(parts, "HDR")
	}
	if meta.Channels != "" {
		parts = append(parts, "🔊"+meta.Channels)
	}
	if meta.Codec != "" {
		parts = append(parts, meta.Codec)
	}
	parts = append(parts, "💾"+humanize.IBytes(uint64(link.Size)))

	name := fmt.Sprintf("[%v+] Annatar %v", shortName, shortName)
	if meta.Resolution != "" {
		name += " " + meta.Resolution
	}
	if meta.Channels != "" {
		name += " " + meta.Channels
	}

	return Result{
		URL:   strings.TrimSpace(link.URL),
		Title: strings.TrimSpace(link.Name) + "\n" + arrangeRows(parts, 3),
		Name:  name,
	}
}

// arrangeRows splits the metadata tags into two lines, with roughly 1/rows of
// them on the first, so long tag lists don't blow up the stream list's row
// height.
func arrangeRows(parts []string, rows int) string {
	if len(parts) == 0 {
		return ""
	}
	split := (len(parts) + 1) / rows
	return strings.Join(parts[:split], " ") + "\n" + strings.Join(parts[split:], " ")
}
