package main

import (
	"context"
	"net/http"

	"github.com/deflix-tv/go-stremio"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/debrid"
)

const (
	manifestID   = "community.annatar"
	manifestName = "Annatar"
)

var manifest = stremio.Manifest{
	ID:          manifestID,
	Name:        manifestName,
	Description: "Lord of Gifts. Search popular torrent sites and Debrid caches for streamable content.",
	Version:     version,

	ResourceItems: []stremio.ResourceItem{
		{
			Name:  "stream",
			Types: []string{"movie", "series"},
			// Shouldn't be required as long as they're defined globally in the manifest, but some Stremio clients send stream requests for non-IMDb IDs, so maybe setting this here as well helps
			IDprefixes: []string{"tt"},
		},
	},
	Types: []string{"movie", "series"},
	// An empty slice is required for serializing to a JSON that Stremio expects
	Catalogs: []stremio.CatalogItem{},

	IDprefixes: []string{"tt"},
	Background: "https://i.imgur.com/p4V821B.png",
	Logo:       "https://i.imgur.com/p4V821B.png",

	BehaviorHints: stremio.BehaviorHints{
		P2P:          false,
		Configurable: true,
		// The unconfigured manifest is valid too, so Stremio shows the addon before the user configured it
		ConfigurationRequired: false,
	},
}

// createManifestCallback customizes the manifest for configured users, so the
// installed addon carries the name of the chosen debrid service. That way a
// user with accounts on two services can install the addon twice and tell the
// installations apart.
func createManifestCallback(registry *debrid.Registry, logger *zap.Logger) stremio.ManifestCallback {
	return func(ctx context.Context, m *stremio.Manifest, userDataIface interface{}) int {
		if userDataIface == nil {
			return http.StatusOK
		}
		udString, ok := userDataIface.(string)
		if !ok || udString == "" {
			return http.StatusOK
		}

		userData, err := decodeUserData(udString, logger)
		if err != nil {
			// The error is already logged by decodeUserData
			return http.StatusBadRequest
		}
		client, found := registry.Get(userData.DebridService)
		if !found {
			logger.Info("Manifest requested for unknown debrid service", zap.String("debridService", userData.DebridService))
			return http.StatusBadRequest
		}

		m.ID = manifestID + "." + client.ID()
		m.Name = manifestName + " " + client.ShortName()
		m.Description += " Configured for " + client.Name() + "."
		return http.StatusOK
	}
}
