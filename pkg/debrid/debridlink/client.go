// Package debridlink implements the debrid.Client interface for
// debrid-link.com.
package debridlink

import (
	"bytes"
	"context"
	"encoding/json"
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
	BaseURL: "https://debrid-link.com/api/v2",
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
	return "debridlink"
}

func (c *Client) ShortName() string {
	return "DL"
}

func (c *Client) Name() string {
	return "Debrid-Link"
}

func (c *Client) SharedCache() bool {
	return false
}

// StreamLinks checks all info hashes in a single batched request and sends a
// stream link for each cached torrent with a suitable video file.
func (c *Client) StreamLinks(ctx context.Context, auth debrid.Auth, infoHashes []string, season, episode int, stop <-chan struct{}) <-chan debrid.StreamLink {
	links := make(chan debrid.StreamLink)
	go func() {
		defer close(links)

		magnetLinks := make([]string, 0, len(infoHashes))
		for _, infoHash := range infoHashes {
			magnetLinks = append(magnetLinks, url.QueryEscape(magnet.Link(infoHash, "")))
		}
		query := url.Values{}
		query.Set("url", strings.Join(magnetLinks, ","))
		resBytes, err := c.request(ctx, auth, "GET", "/seedbox/cached", query, nil)
		if err != nil {
			c.logger.Warn("Couldn't check cached torrents on debrid-link.com", zap.Error(err))
			return
		}

		gjson.GetBytes(resBytes, "value").ForEach(func(_, cached gjson.Result) bool {
			infoHash := strings.ToUpper(cached.Get("hashString").String())
			if infoHash == "" {
				return true
			}
			var files []debrid.File
			for _, fileInfo := range cached.Get("files").Array() {
				files = append(files, debrid.File{
					Name: fileInfo.Get("name").String(),
					Size: fileInfo.Get("size").Int(),
				})
			}
			file, ok := debrid.SelectFile(files, season, episode)
			if !ok {
				return true
			}
			link := debrid.StreamLink{
				URL:  fmt.Sprintf("/dl/%v/%v/%v", auth.APIKey, infoHash, url.PathEscape(file.Name)),
				Name: file.Name,
				Size: file.Size,
			}
			select {
			case links <- link:
			case <-stop:
				return false
			case <-ctx.Done():
				return false
			}
			return true
		})
	}()
	return links
}

// Resolve makes sure the torrent is in the user's seedbox and returns the
// download URL of the requested file.
func (c *Client) Resolve(ctx context.Context, auth debrid.Auth, infoHash, file string) (string, error) {
	torrent, found, err := c.findTorrent(ctx, auth, infoHash)
	if err != nil {
		return "", err
	}
	if !found {
		torrent, err = c.addTorrent(ctx, auth, infoHash)
		if err != nil {
			return "", err
		}
	}
	for _, fileInfo := range torrent.Get("files").Array() {
		if fileInfo.Get("name").String() != file {
			continue
		}
		downloadURL := fileInfo.Get("downloadUrl").String()
		if downloadURL == "" {
			return "", fmt.Errorf("File %q in torrent %v carries no download URL", file, infoHash)
		}
		return downloadURL, nil
	}
	return "", fmt.Errorf("Torrent %v carries no file %q", infoHash, file)
}

func (c *Client) findTorrent(ctx context.Context, auth debrid.Auth, infoHash string) (gjson.Result, bool, error) {
	resBytes, err := c.request(ctx, auth, "GET", "/seedbox/list", nil, nil)
	if err != nil {
		return gjson.Result{}, false, fmt.Errorf("Couldn't list seedbox torrents on debrid-link.com: %v", err)
	}
	for _, torrent := range gjson.GetBytes(resBytes, "value").Array() {
		if strings.EqualFold(torrent.Get("hashString").String(), infoHash) {
			return torrent, true, nil
		}
	}
	return gjson.Result{}, false, nil
}

func (c *Client) addTorrent(ctx context.Context, auth debrid.Auth, infoHash string) (gjson.Result, error) {
	body := map[string]string{"url": magnet.Link(infoHash, "")}
	resBytes, err := c.request(ctx, auth, "POST", "/seedbox/add", nil, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("Couldn't add torrent to debrid-link.com: %v", err)
	}
	torrent := gjson.GetBytes(resBytes, "value")
	if !torrent.Exists() {
		return gjson.Result{}, errors.New("Couldn't add torrent to debrid-link.com: response carries no torrent")
	}
	return torrent, nil
}

func (c *Client) request(ctx context.Context, auth debrid.Auth, method, path string, query url.Values, body map[string]string) ([]byte, error) {
	reqURL := c.baseURL + path
	if query != nil {
		reqURL += "?" + query.Encode()
	}
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("Couldn't create %v request: %v", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+auth.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Couldn't send %v request: %v", method, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("Invalid token")
		}
		return nil, fmt.Errorf("bad HTTP response status: %v (%v request to '%v')", res.Status, method, reqURL)
	}
	resBytes, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(resBytes, "success").Bool() {
		return nil, fmt.Errorf("debrid-link.com responded with an error: %v", gjson.GetBytes(resBytes, "error").String())
	}
	return resBytes, nil
}
