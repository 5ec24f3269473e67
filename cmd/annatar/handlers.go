package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/deflix-tv/go-stremio"

	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/filters"
	"github.com/annatar-tv/annatar/pkg/stream"
	"github.com/annatar-tv/annatar/pkg/torrent"
)

func createStreamHandler(config config, registry *debrid.Registry, resolver *stream.Resolver, logger *zap.Logger) stremio.StreamHandler {
	return func(ctx context.Context, id string, userDataIface interface{}) ([]stremio.StreamItem, error) {
		// Parse userData.
		// No need to check if the interface is a string or if the decoding worked, because the config middleware does that already.
		udString := userDataIface.(string)
		userData, _ := decodeUserData(udString, logger)
		client, _ := registry.Get(userData.DebridService)

		imdbID, season, episode, isTVShow, err := parseStreamID(id)
		if err != nil {
			logger.Info("Couldn't parse stream ID", zap.Error(err), zap.String("id", id))
			return nil, stremio.BadRequest
		}
		category := torrent.CategoryMovie
		if isTVShow {
			category = torrent.CategorySeries
		}

		auth := debrid.Auth{APIKey: userData.DebridAPIkey}
		// The stream handler doesn't have access to the fiber context, so the
		// user's own IP can only be forwarded at the resolve endpoints.
		if config.OverrideOriginIP != "" {
			auth.IP = config.OverrideOriginIP
		}

		active := filters.ByID(userData.Filters)
		results, err := resolver.Streams(ctx, client, auth, imdbID, category, season, episode, active, userData.MaxResults)
		if err != nil {
			// An internal error must not break the player, it just gets an empty list
			logger.Error("Couldn't assemble streams", zap.Error(err), zap.String("imdbID", imdbID))
			return []stremio.StreamItem{}, nil
		}

		streams := make([]stremio.StreamItem, 0, len(results))
		for _, result := range results {
			streamURL := result.URL
			// Resolve URLs point back to this addon and are relative
			if strings.HasPrefix(streamURL, "/") {
				streamURL = config.BaseURL + streamURL
			}
			streams = append(streams, stremio.StreamItem{
				URL:   streamURL,
				Name:  result.Name,
				Title: result.Title,
			})
		}
		return streams, nil
	}
}

// parseStreamID splits a Stremio stream ID into the IMDb ID and, for TV shows
// ("tt0108778:5:10"), season and episode.
func parseStreamID(id string) (string, int, int, bool, error) {
	idParts := strings.Split(id, ":")
	if len(idParts) == 1 {
		return idParts[0], 0, 0, false, nil
	}
	if len(idParts) != 3 {
		return "", 0, 0, false, fmt.Errorf("ID consists of %v parts instead of 1 or 3", len(idParts))
	}
	season, err := strconv.Atoi(idParts[1])
	if err != nil {
		return "", 0, 0, false, fmt.Errorf("Couldn't convert season to int: %v", err)
	}
	episode, err := strconv.Atoi(idParts[2])
	if err != nil {
		return "", 0, 0, false, fmt.Errorf("Couldn't convert episode to int: %v", err)
	}
	return idParts[0], season, episode, true, nil
}

// createResolveHandler creates the handler for one debrid service's resolve
// endpoint. It turns the info hash and file reference from a previously
// served stream URL into the service's direct download URL and redirects.
func createResolveHandler(client debrid.Client, config config, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Params("apiKey", "")
		infoHash := c.Params("infoHash", "")
		file, err := url.PathUnescape(c.Params("file", ""))
		if err != nil || apiKey == "" || infoHash == "" || file == "" {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		zapFieldInfoHash := zap.String("infoHash", infoHash)

		auth := debrid.Auth{
			APIKey: apiKey,
			IP:     originIP(c, config),
		}
		streamURL, err := client.Resolve(c.Context(), auth, strings.ToUpper(infoHash), file)
		if err != nil {
			logger.Warn("Couldn't resolve stream URL", zap.Error(err), zap.String("service", client.ID()), zapFieldInfoHash)
			return c.SendStatus(fiber.StatusNotFound)
		}

		logger.Debug("Responding with redirect to stream", zap.String("redirectLocation", streamURL), zapFieldInfoHash)
		c.Set("Location", streamURL)
		return c.SendStatus(fiber.StatusFound)
	}
}

// createHashesHandler creates the handler for the debug endpoint that lists
// the stored torrents of a media.
func createHashesHandler(resolver *stream.Resolver, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		imdbID := c.Params("imdb", "")
		if imdbID == "" {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		limit, err := strconv.Atoi(c.Query("limit", "25"))
		if err != nil || limit <= 0 {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		var season, episode int
		category := torrent.CategoryMovie
		if seasonVal := c.Query("season", ""); seasonVal != "" {
			if season, err = strconv.Atoi(seasonVal); err != nil {
				return c.SendStatus(fiber.StatusBadRequest)
			}
			category = torrent.CategorySeries
		}
		if episodeVal := c.Query("episode", ""); episodeVal != "" {
			if episode, err = strconv.Atoi(episodeVal); err != nil {
				return c.SendStatus(fiber.StatusBadRequest)
			}
		}

		hashes, err := resolver.Hashes(c.Context(), imdbID, category, season, episode, limit)
		if err != nil {
			logger.Error("Couldn't list hashes", zap.Error(err), zap.String("imdbID", imdbID))
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"hashes": hashes})
	}
}

// createMetricsHandler creates the handler serving the Prometheus metrics,
// like the Redis command durations recorded by the db package.
func createMetricsHandler() fiber.Handler {
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	}
}

// originIP returns the IP address the debrid requests triggered by this
// request should be attributed to. Debrid services limit accounts that show
// up with many IPs, so a deployment serving several users should forward each
// user's own address.
func originIP(c *fiber.Ctx, config config) string {
	if config.OverrideOriginIP != "" {
		return config.OverrideOriginIP
	}
	if !config.ForwardOriginIP {
		return ""
	}
	if headerVal := c.Get(config.OriginIPHeader); headerVal != "" {
		return strings.TrimSpace(strings.SplitN(headerVal, ",", 2)[0])
	}
	return c.IP()
}
