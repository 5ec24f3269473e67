package main

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Number of streams served per request when the user didn't configure one
const defaultMaxResults = 5

// userData is the addon configuration a user creates on the configure page.
// It travels as Base64-encoded JSON inside the addon URL.
type userData struct {
	DebridService string   `json:"debrid_service"`
	DebridAPIkey  string   `json:"debrid_api_key"`
	Filters       []string `json:"filters,omitempty"`
	MaxResults    int      `json:"max_results,omitempty"`
}

func decodeUserData(data string, logger *zap.Logger) (userData, error) {
	logger.Debug("Decoding user data", zap.String("userData", data))

	// If there's padding, we remove it, so that the decoding works with both:
	data = strings.TrimSuffix(data, "=")
	userDataDecoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		// We use WARN instead of ERROR because it's most likely an *encoding* error on the client side
		logger.Warn("Couldn't decode user data", zap.Error(err))
		return userData{}, err
	}

	ud := userData{}
	if err := json.Unmarshal(userDataDecoded, &ud); err != nil {
		logger.Warn("Couldn't unmarshal user data", zap.Error(err))
		return userData{}, err
	}
	if ud.MaxResults <= 0 {
		ud.MaxResults = defaultMaxResults
	}
	return ud, nil
}
