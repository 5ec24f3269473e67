// Package magnet parses magnet links and resolves indexer download links
// into magnet links.
package magnet

import (
	"regexp"
	"strings"
)

var btihRx = regexp.MustCompile(`btih:([a-zA-Z0-9]+)`)

// InfoHash extracts the upper-cased BTIH info hash from a magnet link.
func InfoHash(magnetLink string) (string, bool) {
	match := btihRx.FindStringSubmatch(magnetLink)
	if match == nil {
		return "", false
	}
	return strings.ToUpper(match[1]), true
}

// Link builds a minimal magnet link for an info hash, with the title as
// display name.
func Link(infoHash, title string) string {
	link := "magnet:?xt=urn:btih:" + strings.ToLower(infoHash)
	if title != "" {
		link += "&dn=" + escapeQuery(title)
	}
	return link
}

func escapeQuery(s string) string {
	replacer := strings.NewReplacer(" ", "+", "&", "%26", "?", "%3F", "#", "%23", "%", "%25")
	return replacer.Replace(s)
}
