package main

import (
	"encoding/base64"
	"io/ioutil"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/debrid/alldebrid"
)

func TestParseStreamID(t *testing.T) {
	imdbID, season, episode, isTVShow, err := parseStreamID("tt0137523")
	require.NoError(t, err)
	require.Equal(t, "tt0137523", imdbID)
	require.False(t, isTVShow)

	imdbID, season, episode, isTVShow, err = parseStreamID("tt0108778:5:10")
	require.NoError(t, err)
	require.Equal(t, "tt0108778", imdbID)
	require.Equal(t, 5, season)
	require.Equal(t, 10, episode)
	require.True(t, isTVShow)

	// Season 0 is how Stremio addresses specials
	_, season, _, isTVShow, err = parseStreamID("tt0108778:0:5")
	require.NoError(t, err)
	require.Equal(t, 0, season)
	require.True(t, isTVShow)

	_, _, _, _, err = parseStreamID("tt0108778:5")
	require.Error(t, err)
	_, _, _, _, err = parseStreamID("tt0108778:five:10")
	require.Error(t, err)
}

func newTestRegistry(t *testing.T) *debrid.Registry {
	t.Helper()
	adClient, err := alldebrid.NewClient(alldebrid.DefaultClientOpts, zap.NewNop())
	require.NoError(t, err)
	return debrid.NewRegistry(adClient)
}

func TestConfigMiddleware(t *testing.T) {
	app := fiber.New()
	middleware := createConfigMiddleware(newTestRegistry(t), zap.NewNop())
	app.Get("/:userData/stream/:type/:id", middleware, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	encode := func(payload string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(payload))
	}

	for _, testCase := range []struct {
		name     string
		userData string
		status   int
	}{
		{"valid config", encode(`{"debrid_service":"alldebrid","debrid_api_key":"key"}`), fiber.StatusOK},
		{"broken encoding", "!!!", fiber.StatusBadRequest},
		{"missing API key", encode(`{"debrid_service":"alldebrid"}`), fiber.StatusUnauthorized},
		{"unknown service", encode(`{"debrid_service":"nope","debrid_api_key":"key"}`), fiber.StatusBadRequest},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/"+testCase.userData+"/stream/movie/tt0137523.json", nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, testCase.status, resp.StatusCode)
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/metrics", createMetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	// The default registry always carries the Go runtime collectors
	require.Contains(t, string(body), "go_goroutines")
}

func TestOriginIP(t *testing.T) {
	app := fiber.New()
	var gotIP string
	var cfg config
	app.Get("/ip", func(c *fiber.Ctx) error {
		gotIP = originIP(c, cfg)
		return c.SendStatus(fiber.StatusOK)
	})
	request := func(forwardedFor string) {
		req := httptest.NewRequest("GET", "/ip", nil)
		if forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", forwardedFor)
		}
		_, err := app.Test(req)
		require.NoError(t, err)
	}

	// Forwarding disabled
	cfg = config{OriginIPHeader: "X-Forwarded-For"}
	request("1.2.3.4")
	require.Equal(t, "", gotIP)

	// First proxy hop wins
	cfg.ForwardOriginIP = true
	request("1.2.3.4, 10.0.0.1")
	require.Equal(t, "1.2.3.4", gotIP)

	// Override beats everything
	cfg.OverrideOriginIP = "5.6.7.8"
	request("1.2.3.4")
	require.Equal(t, "5.6.7.8", gotIP)
}
