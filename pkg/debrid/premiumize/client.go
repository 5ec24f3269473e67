// Package premiumize implements the debrid.Client interface for
// premiumize.me.
package premiumize

import (
	"context"
	"errors"
	"fmt"
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
)

// probeConcurrency is the number of parallel directdl requests
const probeConcurrency = 10

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
	BaseURL: "https://www.premiumize.me/api",
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
	return "premiumize"
}

func (c *Client) ShortName() string {
	return "PM"
}

func (c *Client) Name() string {
	return "Premiumize"
}

func (c *Client) SharedCache() bool {
	// Premiumize serves cached torrents from a shared pool
	return true
}

// StreamLinks requests a direct download for every info hash and sends a
// stream link for each cached torrent with a suitable video file. Premiumize
// returns final URLs directly, so no resolve step is needed.
func (c *Client) StreamLinks(ctx context.Context, auth debrid.Auth, infoHashes []string, season, episode int, stop <-chan struct{}) <-chan debrid.StreamLink {
	links := make(chan debrid.StreamLink)
	hashes := make(chan string)

	var wg sync.WaitGroup
	workers := probeConcurrency
	if len(infoHashes) < workers {
		workers = len(infoHashes)
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

	go func() {
		defer close(hashes)
		for _, infoHash := range infoHashes {
			select {
			case hashes <- infoHash:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(links)
	}()

	return links
}

func (c *Client) streamLink(ctx context.Context, auth debrid.Auth, infoHash string, season, episode int) (debrid.StreamLink, bool) {
	data := url.Values{}
	data.Set("src", magnet.Link(infoHash, ""))
	resBytes, err := c.post(ctx, auth, "/transfer/directdl", data)
	if err != nil {
		c.logger.Warn("Couldn't request direct download from premiumize.me", zap.Error(err), zap.String("infoHash", infoHash))
		return debrid.StreamLink{}, false
	}

	content := gjson.GetBytes(resBytes, "content").Array()
	files := make([]debrid.File, 0, len(content))
	fileURLs := make(map[string]string, len(content))
	for _, fileInfo := range content {
		name := fileInfo.Get("path").String()
		if slashIndex := strings.LastIndex(name, "/"); slashIndex != -1 {
			name = name[slashIndex+1:]
		}
		streamURL := fileInfo.Get("stream_link").String()
		if streamURL == "" {
			streamURL = fileInfo.Get("link").String()
		}
		files = append(files, debrid.File{
			Name: name,
			Size: fileInfo.Get("size").Int(),
		})
		fileURLs[name] = streamURL
	}
	file, ok := debrid.SelectFile(files, season, episode)
	if !ok {
		return debrid.StreamLink{}, false
	}
	return debrid.StreamLink{
		URL:  fileURLs[file.Name],
		Name: file.Name,
		Size: file.Size,
	}, true
}

// Resolve is not needed, StreamLinks returns direct URLs.
func (c *Client) Resolve(_ context.Context, _ debrid.Auth, _, _ string) (string, error) {
	return "", debrid.ErrNoResolver
}

func (c *Client) post(ctx context.Context, auth debrid.Auth, path string, data url.Values) ([]byte, error) {
	reqURL := c.baseURL + path + "?apikey=" + url.QueryEscape(auth.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("Couldn't create POST request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Couldn't send POST request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad HTTP response status: %v (POST request to '%v')", res.Status, reqURL)
	}
	resBytes, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if status := gjson.GetBytes(resBytes, "status").String(); status != "success" {
		return nil, fmt.Errorf("premiumize.me responded with status %q: %v", status, gjson.GetBytes(resBytes, "message").String())
	}
	return resBytes, nil
}
