package main

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeUserData(t *testing.T) {
	ud := userData{
		DebridService: "realdebrid",
		DebridAPIkey:  "abc123",
		Filters:       []string{"4k", "cam"},
		MaxResults:    10,
	}
	data, err := json.Marshal(ud)
	require.NoError(t, err)

	// Stremio clients send the Base64 with or without padding
	padded := base64.URLEncoding.EncodeToString(data)
	unpadded := base64.RawURLEncoding.EncodeToString(data)
	for _, encoded := range []string{padded, unpadded} {
		decoded, err := decodeUserData(encoded, zap.NewNop())
		require.NoError(t, err)
		require.Equal(t, ud, decoded)
	}
}

func TestDecodeUserDataDefaults(t *testing.T) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(`{"debrid_service":"alldebrid","debrid_api_key":"key"}`))
	decoded, err := decodeUserData(encoded, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "alldebrid", decoded.DebridService)
	require.Equal(t, defaultMaxResults, decoded.MaxResults)
	require.Empty(t, decoded.Filters)
}

func TestDecodeUserDataInvalid(t *testing.T) {
	_, err := decodeUserData("%%%not-base64%%%", zap.NewNop())
	require.Error(t, err)

	encoded := base64.RawURLEncoding.EncodeToString([]byte("no json here"))
	_, err = decodeUserData(encoded, zap.NewNop())
	require.Error(t, err)
}
