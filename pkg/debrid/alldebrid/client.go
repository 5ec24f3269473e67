// Package alldebrid implements the debrid.Client interface for
// alldebrid.com.
package alldebrid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/magnet"
)

// agent identifies the addon towards AllDebrid, which requires one for all
// API requests.
const agent = "annatar"

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
}

func NewClientOpts(baseURL string, timeout time.Duration) ClientOptions {
	return ClientOptions{
		BaseURL: baseURL,
		Timeout: timeout,
	}
}

var DefaultClientOpts = ClientOptions{
	BaseURL: "https://api.alldebrid.com/v4",
	Timeout: 10 * time.Second,
}

var _ debrid.Client = (*Client)(nil)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(opts ClientOptions, logger *zap.Logger) (*Client, error) {
	// Precondition check
	if opts.BaseURL == "" {
		return nil, errors.New("opts.BaseURL must not be empty")
	}
	return &Client{
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}, nil
}

func (c *Client) ID() string {
	return "alldebrid"
}

func (c *Client) ShortName() string {
	return "AD"
}

func (c *Client) Name() string {
	return "AllDebrid"
}

func (c *Client) SharedCache() bool {
	return false
}

// StreamLinks checks all info hashes in a single batched request and sends a
// stream link for each cached torrent with a suitable video file. The links
// are resolve paths on the addon, the direct URL requires another API round
// trip that only happens when the user hits play.
func (c *Client) StreamLinks(ctx context.Context, auth debrid.Auth, infoHashes []string, season, episode int, stop <-chan struct{}) <-chan debrid.StreamLink {
	links := make(chan debrid.StreamLink)
	go func() {
		defer close(links)

		data := url.Values{}
		for _, infoHash := range infoHashes {
			data.Add("magnets[]", strings.ToLower(infoHash))
		}
		resBytes, err := c.request(ctx, auth, "POST", "/magnet/instant", nil, data)
		if err != nil {
			c.logger.Warn("Couldn't check instant availability on alldebrid.com", zap.Error(err))
			return
		}

		for _, cached := range gjson.GetBytes(resBytes, "data.magnets").Array() {
			if !cached.Get("instant").Bool() {
				continue
			}
			var files []debrid.File
			for _, fileInfo := range cached.Get("files").Array() {
				files = append(files, debrid.File{
					Name: fileInfo.Get("n").String(),
					Size: fileInfo.Get("s").Int(),
				})
			}
			file, ok := debrid.SelectFile(files, season, episode)
			if !ok {
				continue
			}
			link := debrid.StreamLink{
				URL:  fmt.Sprintf("/ad/%v/%v/%v", auth.APIKey, strings.ToUpper(cached.Get("hash").String()), url.PathEscape(file.Name)),
				Name: file.Name,
				Size: file.Size,
			}
			select {
			case links <- link:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return links
}

// Resolve makes sure the torrent is in the user's AllDebrid account and
// unlocks the requested file into a direct video URL.
func (c *Client) Resolve(ctx context.Context, auth debrid.Auth, infoHash, file string) (string, error) {
	torrent, err := c.getOrAddTorrent(ctx, auth, infoHash)
	if err != nil {
		return "", err
	}
	for _, torrentLink := range torrent.Get("links").Array() {
		if torrentLink.Get("filename").String() != file {
			continue
		}
		return c.unlock(ctx, auth, torrentLink.Get("link").String())
	}
	return "", fmt.Errorf("Torrent %v carries no file %q", infoHash, file)
}

func (c *Client) getOrAddTorrent(ctx context.Context, auth debrid.Auth, infoHash string) (gjson.Result, error) {
	resBytes, err := c.request(ctx, auth, "GET", "/magnet/status", nil, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Couldn't list torrents on alldebrid.com: %v", err)
	}
	if torrent, found := findTorrent(resBytes, infoHash); found {
		return torrent, nil
	}

	data := url.Values{}
	data.Set("magnets[]", magnet.Link(infoHash, ""))
	resBytes, err = c.request(ctx, auth, "POST", "/magnet/upload", nil, data)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Couldn't add torrent to alldebrid.com: %v", err)
	}
	torrentID := gjson.GetBytes(resBytes, "data.magnets.0.id").String()
	if torrentID == "" {
		return gjson.Result{}, errors.New("Couldn't add torrent to alldebrid.com: response carries no torrent ID")
	}

	query := url.Values{}
	query.Set("id", torrentID)
	resBytes, err = c.request(ctx, auth, "GET", "/magnet/status", query, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Couldn't get torrent info from alldebrid.com: %v", err)
	}
	if torrent, found := findTorrent(resBytes, infoHash); found {
		return torrent, nil
	}
	return gjson.Result{}, fmt.Errorf("Torrent %v not found on alldebrid.com after adding it", infoHash)
}

// findTorrent picks the torrent with the given info hash from a magnet
// status response. The "magnets" value is an object when queried by ID and
// an array otherwise.
func findTorrent(resBytes []byte, infoHash string) (gjson.Result, bool) {
	magnets := gjson.GetBytes(resBytes, "data.magnets")
	if !magnets.IsArray() {
		if strings.EqualFold(magnets.Get("hash").String(), infoHash) {
			return magnets, true
		}
		return gjson.Result{}, false
	}
	for _, torrent := range magnets.Array() {
		if strings.EqualFold(torrent.Get("hash").String(), infoHash) {
			return torrent, true
		}
	}
	return gjson.Result{}, false
}

func (c *Client) unlock(ctx context.Context, auth debrid.Auth, link string) (string, error) {
	query := url.Values{}
	query.Set("link", link)
	resBytes, err := c.request(ctx, auth, "GET", "/link/unlock", query, nil)
	if err != nil {
		return "", fmt.Errorf("Couldn't unlock link on alldebrid.com: %v", err)
	}
	streamURL := gjson.GetBytes(resBytes, "data.link").String()
	if streamURL == "" {
		return "", errors.New("Couldn't unlock link on alldebrid.com: response carries no link")
	}
	return streamURL, nil
}

func (c *Client) request(ctx context.Context, auth debrid.Auth, method, path string, query url.Values, form url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("agent", agent)
	query.Set("apikey", auth.APIKey)
	if auth.IP != "" {
		query.Set("ip", auth.IP)
	}
	reqURL := c.baseURL + path + "?" + query.Encode()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("Couldn't create %v request: %v", method, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Couldn't send %v request: %v", method, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad HTTP response status: %v (%v request to '%v')", res.Status, method, reqURL)
	}
	resBytes, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	// AllDebrid responds 200 even for errors and carries the real status in
	// the body
	if status := gjson.GetBytes(resBytes, "status").String(); status != "success" {
		return nil, fmt.Errorf("alldebrid.com responded with status %q: %v", status, gjson.GetBytes(resBytes, "error.message").String())
	}
	return resBytes, nil
}
