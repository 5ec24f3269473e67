// Package offcloud implements the debrid.Client interface for offcloud.com.
package offcloud

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
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/magnet"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

// probeConcurrency is the number of cached torrents explored in parallel
const probeConcurrency = 5

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
	BaseURL: "https://offcloud.com/api",
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
	return "offcloud"
}

func (c *Client) ShortName() string {
	return "OC"
}

func (c *Client) Name() string {
	return "Offcloud"
}

func (c *Client) SharedCache() bool {
	return false
}

// StreamLinks checks which info hashes Offcloud has cached and turns each
// one into a direct download URL. Offcloud has no lightweight file listing,
// so the torrent is added to the user's cloud right away, cached ones
// complete instantly.
func (c *Client) StreamLinks(ctx context.Context, auth debrid.Auth, infoHashes []string, season, episode int, stop <-chan struct{}) <-chan debrid.StreamLink {
	links := make(chan debrid.StreamLink)
	go func() {
		defer close(links)

		resBytes, err := c.request(ctx, auth, "POST", "/cache", map[string]interface{}{"hashes": infoHashes})
		if err != nil {
			c.logger.Warn("Couldn't check cached torrents on offcloud.com", zap.Error(err))
			return
		}
		cached := gjson.GetBytes(resBytes, "cachedItems").Array()
		if len(cached) == 0 {
			return
		}

		hashes := make(chan string)
		var wg sync.WaitGroup
		workers := probeConcurrency
		if len(cached) < workers {
			workers = len(cached)
		}
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for infoHash := range hashes {
					link, found := c.streamLink(ctx, auth, infoHash, season, episode)
					if !found {
						continue
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
		}
	feed:
		for _, item := range cached {
			select {
			case hashes <- item.String():
			case <-stop:
				break feed
			case <-ctx.Done():
				break feed
			}
		}
		close(hashes)
		wg.Wait()
	}()
	return links
}

func (c *Client) streamLink(ctx context.Context, auth debrid.Auth, infoHash string, season, episode int) (debrid.StreamLink, bool) {
	zapFieldInfoHash := zap.String("infoHash", infoHash)

	resBytes, err := c.request(ctx, auth, "POST", "/cloud", map[string]interface{}{"url": magnet.Link(infoHash, "")})
	if err != nil {
		c.logger.Warn("Couldn't add torrent to offcloud.com", zap.Error(err), zapFieldInfoHash)
		return debrid.StreamLink{}, false
	}
	requestID := gjson.GetBytes(resBytes, "requestId").String()
	if requestID == "" {
		c.logger.Debug("Torrent not available on offcloud.com", zapFieldInfoHash)
		return debrid.StreamLink{}, false
	}

	resBytes, err = c.request(ctx, auth, "POST", "/cloud/status", map[string]interface{}{"requestIds": []string{requestID}})
	if err != nil {
		c.logger.Warn("Couldn't get torrent status from offcloud.com", zap.Error(err), zapFieldInfoHash)
		return debrid.StreamLink{}, false
	}
	var status gjson.Result
	for _, request := range gjson.GetBytes(resBytes, "requests").Array() {
		if request.Get("requestId").String() == requestID {
			status = request
			break
		}
	}
	if !status.Exists() {
		return debrid.StreamLink{}, false
	}

	fileName := status.Get("fileName").String()
	fileSize := status.Get("fileSize").Int()
	if !status.Get("isDirectory").Bool() {
		if !debrid.IsVideo(fileName, fileSize) {
			return debrid.StreamLink{}, false
		}
		return debrid.StreamLink{
			URL:  fmt.Sprintf("https://%v.offcloud.com/cloud/download/%v/%v", status.Get("server").String(), requestID, url.PathEscape(fileName)),
			Name: fileName,
			Size: fileSize,
		}, true
	}

	downloadURL, found := c.exploreFolder(ctx, auth, requestID, season, episode)
	if !found {
		return debrid.StreamLink{}, false
	}
	return debrid.StreamLink{
		URL:  downloadURL,
		Name: fileName,
		Size: fileSize,
	}, true
}

// exploreFolder lists the files of a multi-file torrent and picks the video
// matching the request.
func (c *Client) exploreFolder(ctx context.Context, auth debrid.Auth, requestID string, season, episode int) (string, bool) {
	resBytes, err := c.request(ctx, auth, "GET", "/cloud/explore/"+requestID, nil)
	if err != nil {
		c.logger.Warn("Couldn't explore torrent folder on offcloud.com", zap.Error(err), zap.String("requestID", requestID))
		return "", false
	}
	for _, linkResult := range gjson.ParseBytes(resBytes).Array() {
		link := linkResult.String()
		fileName := link
		if slashIndex := strings.LastIndex(fileName, "/"); slashIndex != -1 {
			fileName = fileName[slashIndex+1:]
		}
		if !debrid.IsVideo(fileName, 0) || debrid.IsTrash(fileName) {
			continue
		}
		if season == 0 && episode == 0 {
			return link, true
		}
		meta := torrent.ParseTitle(fileName)
		if meta.HasSeason(season) && meta.HasEpisode(episode) {
			return link, true
		}
	}
	return "", false
}

// Resolve is not needed, StreamLinks returns direct URLs.
func (c *Client) Resolve(_ context.Context, _ debrid.Auth, _, _ string) (string, error) {
	return "", debrid.ErrNoResolver
}

func (c *Client) request(ctx context.Context, auth debrid.Auth, method, path string, body map[string]interface{}) ([]byte, error) {
	reqURL := c.baseURL + path + "?key=" + url.QueryEscape(auth.APIKey)
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Couldn't send %v request: %v", method, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad HTTP response status: %v (%v request to '%v')", res.Status, method, reqURL)
	}
	return ioutil.ReadAll(res.Body)
}
