// Package realdebrid implements the debrid.Client interface for
// real-debrid.com.
package realdebrid

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/magnet"
)

const (
	// fileSetCacheAge covers the window between the availability probe and
	// the user hitting play.
	fileSetCacheAge = 8 * time.Hour
	// streamCacheAge is short because RealDebrid's generated links expire
	streamCacheAge = 4 * time.Hour
	// probeConcurrency is the number of parallel availability checks
	probeConcurrency = 15
)

type ClientOptions struct {
	BaseURL      string
	Timeout      time.Duration
	ExtraHeaders []string
}

func NewClientOpts(baseURL string, timeout time.Duration, extraHeaders []string) ClientOptions {
	return ClientOptions{
		BaseURL:      baseURL,
		Timeout:      timeout,
		ExtraHeaders: extraHeaders,
	}
}

var DefaultClientOpts = ClientOptions{
	BaseURL: "https://api.real-debrid.com",
	Timeout: 10 * time.Second,
}

var _ debrid.Client = (*Client)(nil)

type Client struct {
	baseURL      string
	httpClient   *http.Client
	cache        debrid.Cache
	extraHeaders map[string]string
	logger       *zap.Logger
}

func NewClient(opts ClientOptions, cache debrid.Cache, logger *zap.Logger) (*Client, error) {
	// Precondition check
	if opts.BaseURL == "" {
		return nil, errors.New("opts.BaseURL must not be empty")
	}
	for _, extraHeader := range opts.ExtraHeaders {
		if extraHeader != "" {
			colonIndex := strings.Index(extraHeader, ":")
			if colonIndex <= 0 || colonIndex == len(extraHeader)-1 {
				return nil, errors.New("opts.ExtraHeaders elements must have a format like \"X-Foo: bar\"")
			}
		}
	}

	extraHeaderMap := make(map[string]string, len(opts.ExtraHeaders))
	for _, extraHeader := range opts.ExtraHeaders {
		if extraHeader != "" {
			extraHeaderParts := strings.SplitN(extraHeader, ":", 2)
			extraHeaderMap[extraHeaderParts[0]] = strings.TrimSpace(extraHeaderParts[1])
		}
	}

	return &Client{
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		cache:        cache,
		extraHeaders: extraHeaderMap,
		logger:       logger,
	}, nil
}

func (c *Client) ID() string {
	return "realdebrid"
}

func (c *Client) ShortName() string {
	return "RD"
}

func (c *Client) Name() string {
	return "RealDebrid"
}

func (c *Client) SharedCache() bool {
	// The instant availability of a torrent is the same for all users
	return true
}

// StreamLinks probes the instant availability of the given info hashes and
// sends a stream link for each one with a suitable cached video file.
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
	zapFieldInfoHash := zap.String("infoHash", infoHash)

	resBytes, err := c.get(ctx, c.baseURL+"/rest/1.0/torrents/instantAvailability/"+strings.ToLower(infoHash), auth.APIKey)
	if err != nil {
		c.logger.Warn("Couldn't check instant availability on real-debrid.com", zap.Error(err), zapFieldInfoHash)
		return debrid.StreamLink{}, false
	}

	// The response maps the info hash to availability variants. Each "rd"
	// element is one cached file set, keyed by file ID.
	var link debrid.StreamLink
	found := false
	gjson.ParseBytes(resBytes).ForEach(func(_, value gjson.Result) bool {
		for _, fileSet := range value.Get("rd").Array() {
			var files []debrid.File
			fileSet.ForEach(func(key, fileInfo gjson.Result) bool {
				files = append(files, debrid.File{
					ID:   key.Int(),
					Name: fileInfo.Get("filename").String(),
					Size: fileInfo.Get("filesize").Int(),
				})
				return true
			})
			file, ok := debrid.SelectFile(files, season, episode)
			if !ok {
				continue
			}
			if err := c.cacheFileSet(ctx, infoHash, file.ID, files); err != nil {
				c.logger.Error("Couldn't cache instant file set", zap.Error(err), zapFieldInfoHash)
				continue
			}
			link = debrid.StreamLink{
				URL:  fmt.Sprintf("/rd/%v/%v/%v", auth.APIKey, strings.ToUpper(infoHash), file.ID),
				Name: file.Name,
				Size: file.Size,
			}
			found = true
			return false
		}
		return true
	})
	return link, found
}

// cacheFileSet remembers which file IDs make up the instantly available
// variant, so Resolve can select exactly that set when adding the magnet.
func (c *Client) cacheFileSet(ctx context.Context, infoHash string, fileID int64, files []debrid.File) error {
	fileIDs := make([]int64, 0, len(files))
	for _, file := range files {
		fileIDs = append(fileIDs, file.ID)
	}
	setBytes, err := json.Marshal(fileIDs)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, fileSetKey(infoHash, fileID), string(setBytes), fileSetCacheAge)
}

// Resolve adds the torrent to the user's RealDebrid account, waits for it to
// become available and unrestricts the requested file into a direct video URL.
func (c *Client) Resolve(ctx context.Context, auth debrid.Auth, infoHash, file string) (string, error) {
	infoHash = strings.ToUpper(infoHash)
	streamKey := fmt.Sprintf("rd:torrent:%v:%x:%v", infoHash, sha256.Sum256([]byte(auth.APIKey)), file)
	if streamURL, found, err := c.cache.Get(ctx, streamKey); err != nil {
		c.logger.Error("Couldn't read stream URL cache", zap.Error(err), zap.String("infoHash", infoHash))
	} else if found {
		return streamURL, nil
	}

	fileID, err := strconv.ParseInt(file, 10, 64)
	if err != nil {
		return "", fmt.Errorf("Invalid file ID %q: %v", file, err)
	}
	setValue, found, err := c.cache.Get(ctx, fileSetKey(infoHash, fileID))
	if err != nil {
		return "", fmt.Errorf("Couldn't read instant file set cache: %v", err)
	}
	if !found {
		return "", fmt.Errorf("No cached file set for torrent %v", infoHash)
	}
	var fileIDs []int64
	if err := json.Unmarshal([]byte(setValue), &fileIDs); err != nil {
		return "", fmt.Errorf("Couldn't unmarshal instant file set: %v", err)
	}

	torrentID, err := c.addMagnet(ctx, auth, infoHash)
	if err != nil {
		return "", fmt.Errorf("Couldn't add torrent to RealDebrid: %v", err)
	}
	if err := c.selectFiles(ctx, auth, torrentID, fileIDs); err != nil {
		return "", fmt.Errorf("Couldn't select torrent files on RealDebrid: %v", err)
	}

	torrentLink, err := c.waitForLink(ctx, auth, torrentID, fileID)
	if err != nil {
		return "", err
	}

	streamURL, err := c.unrestrict(ctx, auth, torrentLink)
	if err != nil {
		return "", fmt.Errorf("Couldn't unrestrict link: %v", err)
	}
	if err := c.cache.Set(ctx, streamKey, streamURL, streamCacheAge); err != nil {
		c.logger.Error("Couldn't cache stream URL", zap.Error(err), zap.String("infoHash", infoHash))
	}
	return streamURL, nil
}

func (c *Client) addMagnet(ctx context.Context, auth debrid.Auth, infoHash string) (string, error) {
	data := url.Values{}
	data.Set("magnet", magnet.Link(infoHash, ""))
	if auth.IP != "" {
		data.Set("ip", auth.IP)
	}
	resBytes, err := c.post(ctx, c.baseURL+"/rest/1.0/torrents/addMagnet", auth.APIKey, data)
	if err != nil {
		return "", err
	}
	torrentID := gjson.GetBytes(resBytes, "id").String()
	if torrentID == "" {
		return "", errors.New("response body doesn't contain \"id\" key")
	}
	return torrentID, nil
}

func (c *Client) selectFiles(ctx context.Context, auth debrid.Auth, torrentID string, fileIDs []int64) error {
	ids := make([]string, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		ids = append(ids, strconv.FormatInt(fileID, 10))
	}
	data := url.Values{}
	data.Set("files", strings.Join(ids, ","))
	if auth.IP != "" {
		data.Set("ip", auth.IP)
	}
	_, err := c.post(ctx, c.baseURL+"/rest/1.0/torrents/selectFiles/"+torrentID, auth.APIKey, data)
	return err
}

// waitForLink polls the torrent until it's downloaded, then maps the file ID
// to its download link. For instantly available torrents the first poll
// usually succeeds already.
func (c *Client) waitForLink(ctx context.Context, auth debrid.Auth, torrentID string, fileID int64) (string, error) {
	var torrentLink string
	err := retry.Do(
		func() error {
			resBytes, err := c.get(ctx, c.baseURL+"/rest/1.0/torrents/info/"+torrentID, auth.APIKey)
			if err != nil {
				return fmt.Errorf("Couldn't get torrent info from real-debrid.com: %v", err)
			}
			var info TorrentInfo
			if err := json.Unmarshal(resBytes, &info); err != nil {
				return fmt.Errorf("Couldn't unmarshal torrent info: %v", err)
			}
			switch info.Status {
			case "magnet_error", "error", "virus", "dead":
				return retry.Unrecoverable(fmt.Errorf("Bad torrent status: %v", info.Status))
			case "downloaded":
			default:
				return fmt.Errorf("Torrent not downloaded yet (status %v)", info.Status)
			}
			// The links are in the order of the selected files
			linkIndex := 0
			for _, file := range info.Files {
				if file.Selected != 1 {
					continue
				}
				if file.ID == fileID {
					if linkIndex >= len(info.Links) {
						return retry.Unrecoverable(errors.New("Torrent carries fewer links than selected files"))
					}
					torrentLink = info.Links[linkIndex]
					return nil
				}
				linkIndex++
			}
			return retry.Unrecoverable(fmt.Errorf("File %v wasn't selected in torrent %v", fileID, torrentID))
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	return torrentLink, err
}

func (c *Client) unrestrict(ctx context.Context, auth debrid.Auth, torrentLink string) (string, error) {
	data := url.Values{}
	data.Set("link", torrentLink)
	if auth.IP != "" {
		data.Set("ip", auth.IP)
	}
	resBytes, err := c.post(ctx, c.baseURL+"/rest/1.0/unrestrict/link", auth.APIKey, data)
	if err != nil {
		return "", err
	}
	streamURL := gjson.GetBytes(resBytes, "download").String()
	if streamURL == "" {
		return "", errors.New("response body doesn't contain \"download\" key")
	}
	return streamURL, nil
}

func fileSetKey(infoHash string, fileID int64) string {
	return fmt.Sprintf("rd:instant_file_set:torrent:%v:%v", strings.ToUpper(infoHash), fileID)
}

func (c *Client) get(ctx context.Context, url, apiToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("Couldn't create GET request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiToken)
	for headerKey, headerVal := range c.extraHeaders {
		req.Header.Add(headerKey, headerVal)
	}
	// In case RD blocks requests based on User-Agent
	fakeVersion := strconv.Itoa(rand.Intn(10000))
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0."+fakeVersion+".149 Safari/537.36")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Couldn't send GET request: %v", err)
	}
	defer res.Body.Close()

	// Check server response
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("Invalid token")
		} else if res.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("Account locked")
		}
		resBody, _ := ioutil.ReadAll(res.Body)
		if len(resBody) == 0 {
			return nil, fmt.Errorf("bad HTTP response status: %v (GET request to '%v')", res.Status, url)
		}
		return nil, fmt.Errorf("bad HTTP response status: %v (GET request to '%v'; response body: '%s')", res.Status, url, resBody)
	}

	return ioutil.ReadAll(res.Body)
}

func (c *Client) post(ctx context.Context, url, apiToken string, data url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("Couldn't create POST request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for headerKey, headerVal := range c.extraHeaders {
		req.Header.Add(headerKey, headerVal)
	}
	// In case RD blocks requests based on User-Agent
	fakeVersion := strconv.Itoa(rand.Intn(10000))
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0."+fakeVersion+".149 Safari/537.36")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Couldn't send POST request: %v", err)
	}
	defer res.Body.Close()

	// Check server response.
	// Different RealDebrid API POST endpoints return different status codes.
	if res.StatusCode != http.StatusCreated &&
		res.StatusCode != http.StatusNoContent &&
		res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("Invalid token")
		} else if res.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("Account locked")
		}
		resBody, _ := ioutil.ReadAll(res.Body)
		if len(resBody) == 0 {
			return nil, fmt.Errorf("bad HTTP response status: %v (POST request to '%v')", res.Status, url)
		}
		return nil, fmt.Errorf("bad HTTP response status: %v (POST request to '%v'; response body: '%s')", res.Status, url, resBody)
	}

	return ioutil.ReadAll(res.Body)
}
