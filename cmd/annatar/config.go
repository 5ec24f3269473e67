package main

import (
	"flag"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/jackett"
)

type config struct {
	BindAddr          string        `json:"bindAddr"`
	Port              int           `json:"port"`
	BaseURL           string        `json:"baseURL"`
	RedisAddr         string        `json:"redisAddr"`
	RedisCreds        string        `json:"redisCreds"`
	Namespace         string        `json:"namespace"`
	BaseURLjackett    string        `json:"baseURLjackett"`
	JackettAPIkey     string        `json:"jackettAPIkey"`
	JackettIndexers   []string      `json:"jackettIndexers"`
	JackettTimeout    time.Duration `json:"jackettTimeout"`
	JackettMaxResults int           `json:"jackettMaxResults"`
	JackettCacheAge   time.Duration `json:"jackettCacheAge"`
	SearchFreshness   time.Duration `json:"searchFreshness"`
	SearchTimeout     time.Duration `json:"searchTimeout"`
	SearchWorkers     int           `json:"searchWorkers"`
	ProcessWorkers    int           `json:"processWorkers"`
	BaseURLrd         string        `json:"baseURLrd"`
	BaseURLad         string        `json:"baseURLad"`
	BaseURLpm         string        `json:"baseURLpm"`
	BaseURLdl         string        `json:"baseURLdl"`
	BaseURLoc         string        `json:"baseURLoc"`
	ExtraHeadersRD    []string      `json:"extraHeadersRD"`
	LogLevel          string        `json:"logLevel"`
	LogEncoding       string        `json:"logEncoding"`
	ForwardOriginIP   bool          `json:"forwardOriginIP"`
	OriginIPHeader    string        `json:"originIPHeader"`
	OverrideOriginIP  string        `json:"overrideOriginIP"`
	EnvPrefix         string        `json:"envPrefix"`
}

func parseConfig(logger *zap.Logger) config {
	result := config{}

	// Flags
	var (
		bindAddr          = flag.String("bindAddr", "localhost", `Local interface address to bind to. "localhost" only allows access from the local host. "0.0.0.0" binds to all network interfaces.`)
		port              = flag.Int("port", 8000, "Port to listen on")
		baseURL           = flag.String("baseURL", "http://localhost:8000", "Base URL of this service. It's used to turn the relative resolve URLs in stream responses into absolute ones.")
		redisAddr         = flag.String("redisAddr", "localhost:6379", `Redis host and port, for example "localhost:6379". Redis holds all state: torrent sets, metadata, locks and caches.`)
		redisCreds        = flag.String("redisCreds", "", `Credentials for Redis. Password for Redis version 5 and older, username and password for Redis version 6 and newer. Use the colon character (":") for separating username and password.`)
		namespace         = flag.String("namespace", "annatar", "Prefix for all Redis keys, so multiple deployments can share one Redis")
		baseURLjackett    = flag.String("baseURLjackett", jackett.DefaultClientOpts.BaseURL, "Base URL of the Jackett instance used for indexer searches")
		jackettAPIkey     = flag.String("jackettAPIkey", "", "API key of the Jackett instance")
		jackettIndexers   = flag.String("jackettIndexers", strings.Join(jackett.DefaultWorkerOpts.Indexers, ","), "Jackett indexer IDs to fan searches out to, separated by commas")
		jackettTimeout    = flag.Duration("jackettTimeout", jackett.DefaultClientOpts.Timeout, "Timeout for a single Jackett search request. Jackett scrapes the actual indexers, so this is deliberately generous.")
		jackettMaxResults = flag.Int("jackettMaxResults", jackett.DefaultWorkerOpts.MaxResults, "Per-indexer cap of search results handed to the torrent processor")
		jackettCacheAge   = flag.Duration("jackettCacheAge", jackett.DefaultClientOpts.CacheAge, "Max age of cached Jackett search responses")
		searchFreshness   = flag.Duration("searchFreshness", time.Hour, "Base window during which a media is not searched again. The window doubles with every year of media age.")
		searchTimeout     = flag.Duration("searchTimeout", 10*time.Second, "How long the first stream request for a media waits for the search pipeline to come up with torrents")
		searchWorkers     = flag.Int("searchWorkers", 0, "Number of concurrent search request consumers. 0 uses one per configured indexer.")
		processWorkers    = flag.Int("processWorkers", 0, "Number of concurrent torrent result processors. 0 uses twice the CPU count.")
		baseURLrd         = flag.String("baseURLrd", "https://api.real-debrid.com", "Base URL for RealDebrid")
		baseURLad         = flag.String("baseURLad", "https://api.alldebrid.com/v4", "Base URL for AllDebrid")
		baseURLpm         = flag.String("baseURLpm", "https://www.premiumize.me/api", "Base URL for Premiumize")
		baseURLdl         = flag.String("baseURLdl", "https://debrid-link.com/api/v2", "Base URL for Debrid-Link")
		baseURLoc         = flag.String("baseURLoc", "https://offcloud.com/api", "Base URL for OffCloud")
		extraHeadersRD    = flag.String("extraHeadersRD", "", `Additional HTTP request headers to set for requests to RealDebrid, in a format like "X-Foo: bar", separated by newline characters ("\n")`)
		logLevel          = flag.String("logLevel", "info", `Log level to show only logs with the given and more severe levels. Can be "debug", "info", "warn", "error".`)
		logEncoding       = flag.String("logEncoding", "console", `Log encoding. Can be "console" or "json", where "json" makes more sense when using centralized logging solutions like ELK, Graylog or Loki.`)
		forwardOriginIP   = flag.Bool("forwardOriginIP", false, "Forward the user's original IP address to the debrid services at the resolve endpoints")
		originIPHeader    = flag.String("originIPHeader", "X-Forwarded-For", "Header to read the user's original IP address from when running behind a reverse proxy. The first entry will be used.")
		overrideOriginIP  = flag.String("overrideOriginIP", "", "Fixed IP address to send to the debrid services instead of the user's, for deployments where all debrid traffic egresses via one address")
		envPrefix         = flag.String("envPrefix", "ANNATAR", "Prefix for environment variables")
	)

	flag.Parse()

	if *envPrefix != "" && !strings.HasSuffix(*envPrefix, "_") {
		*envPrefix += "_"
	}
	result.EnvPrefix = *envPrefix

	// Only overwrite the values by their env var counterparts that have not been set (and that *are* set via env var).
	var err error
	if !isArgSet("bindAddr") {
		if val, ok := os.LookupEnv(*envPrefix + "BIND_ADDR"); ok {
			*bindAddr = val
		}
	}
	result.BindAddr = *bindAddr

	if !isArgSet("port") {
		if val, ok := os.LookupEnv(*envPrefix + "PORT"); ok {
			if *port, err = strconv.Atoi(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to int", zap.Error(err), zap.String("envVar", "PORT"))
			}
		}
	}
	result.Port = *port

	if !isArgSet("baseURL") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL"); ok {
			*baseURL = val
		}
	}
	result.BaseURL = *baseURL

	if !isArgSet("redisAddr") {
		if val, ok := os.LookupEnv(*envPrefix + "REDIS_ADDR"); ok {
			*redisAddr = val
		}
	}
	result.RedisAddr = *redisAddr

	if !isArgSet("redisCreds") {
		if val, ok := os.LookupEnv(*envPrefix + "REDIS_CREDS"); ok {
			*redisCreds = val
		}
	}
	result.RedisCreds = *redisCreds

	if !isArgSet("namespace") {
		if val, ok := os.LookupEnv(*envPrefix + "NAMESPACE"); ok {
			*namespace = val
		}
	}
	result.Namespace = *namespace

	if !isArgSet("baseURLjackett") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_JACKETT"); ok {
			*baseURLjackett = val
		}
	}
	result.BaseURLjackett = *baseURLjackett

	if !isArgSet("jackettAPIkey") {
		if val, ok := os.LookupEnv(*envPrefix + "JACKETT_API_KEY"); ok {
			*jackettAPIkey = val
		}
	}
	result.JackettAPIkey = *jackettAPIkey

	if !isArgSet("jackettIndexers") {
		if val, ok := os.LookupEnv(*envPrefix + "JACKETT_INDEXERS"); ok {
			*jackettIndexers = val
		}
	}
	for _, indexer := range strings.Split(*jackettIndexers, ",") {
		indexer = strings.TrimSpace(indexer)
		if indexer != "" {
			result.JackettIndexers = append(result.JackettIndexers, indexer)
		}
	}

	if !isArgSet("jackettTimeout") {
		if val, ok := os.LookupEnv(*envPrefix + "JACKETT_TIMEOUT"); ok {
			if *jackettTimeout, err = time.ParseDuration(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to time.Duration", zap.Error(err), zap.String("envVar", "JACKETT_TIMEOUT"))
			}
		}
	}
	result.JackettTimeout = *jackettTimeout

	if !isArgSet("jackettMaxResults") {
		if val, ok := os.LookupEnv(*envPrefix + "JACKETT_MAX_RESULTS"); ok {
			if *jackettMaxResults, err = strconv.Atoi(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to int", zap.Error(err), zap.String("envVar", "JACKETT_MAX_RESULTS"))
			}
		}
	}
	result.JackettMaxResults = *jackettMaxResults

	if !isArgSet("jackettCacheAge") {
		if val, ok := os.LookupEnv(*envPrefix + "JACKETT_CACHE_AGE"); ok {
			if *jackettCacheAge, err = time.ParseDuration(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to time.Duration", zap.Error(err), zap.String("envVar", "JACKETT_CACHE_AGE"))
			}
		}
	}
	result.JackettCacheAge = *jackettCacheAge

	if !isArgSet("searchFreshness") {
		if val, ok := os.LookupEnv(*envPrefix + "SEARCH_FRESHNESS"); ok {
			if *searchFreshness, err = time.ParseDuration(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to time.Duration", zap.Error(err), zap.String("envVar", "SEARCH_FRESHNESS"))
			}
		}
	}
	result.SearchFreshness = *searchFreshness

	if !isArgSet("searchTimeout") {
		if val, ok := os.LookupEnv(*envPrefix + "SEARCH_TIMEOUT"); ok {
			if *searchTimeout, err = time.ParseDuration(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to time.Duration", zap.Error(err), zap.String("envVar", "SEARCH_TIMEOUT"))
			}
		}
	}
	result.SearchTimeout = *searchTimeout

	if !isArgSet("searchWorkers") {
		if val, ok := os.LookupEnv(*envPrefix + "SEARCH_WORKERS"); ok {
			if *searchWorkers, err = strconv.Atoi(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to int", zap.Error(err), zap.String("envVar", "SEARCH_WORKERS"))
			}
		}
	}
	result.SearchWorkers = *searchWorkers

	if !isArgSet("processWorkers") {
		if val, ok := os.LookupEnv(*envPrefix + "PROCESS_WORKERS"); ok {
			if *processWorkers, err = strconv.Atoi(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to int", zap.Error(err), zap.String("envVar", "PROCESS_WORKERS"))
			}
		}
	}
	result.ProcessWorkers = *processWorkers

	if !isArgSet("baseURLrd") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_RD"); ok {
			*baseURLrd = val
		}
	}
	result.BaseURLrd = *baseURLrd

	if !isArgSet("baseURLad") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_AD"); ok {
			*baseURLad = val
		}
	}
	result.BaseURLad = *baseURLad

	if !isArgSet("baseURLpm") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_PM"); ok {
			*baseURLpm = val
		}
	}
	result.BaseURLpm = *baseURLpm

	if !isArgSet("baseURLdl") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_DL"); ok {
			*baseURLdl = val
		}
	}
	result.BaseURLdl = *baseURLdl

	if !isArgSet("baseURLoc") {
		if val, ok := os.LookupEnv(*envPrefix + "BASE_URL_OC"); ok {
			*baseURLoc = val
		}
	}
	result.BaseURLoc = *baseURLoc

	if !isArgSet("extraHeadersRD") {
		if val, ok := os.LookupEnv(*envPrefix + "EXTRA_HEADERS_RD"); ok {
			*extraHeadersRD = val
		}
	}
	if *extraHeadersRD != "" {
		headers := strings.Split(*extraHeadersRD, "\n")
		for _, header := range headers {
			header = strings.TrimSpace(header)
			if header != "" {
				result.ExtraHeadersRD = append(result.ExtraHeadersRD, header)
			}
		}
	}

	if !isArgSet("logLevel") {
		if val, ok := os.LookupEnv(*envPrefix + "LOG_LEVEL"); ok {
			*logLevel = val
		}
	}
	result.LogLevel = *logLevel

	if !isArgSet("logEncoding") {
		if val, ok := os.LookupEnv(*envPrefix + "LOG_ENCODING"); ok {
			*logEncoding = val
		}
	}
	result.LogEncoding = *logEncoding

	if !isArgSet("forwardOriginIP") {
		if val, ok := os.LookupEnv(*envPrefix + "FORWARD_ORIGIN_IP"); ok {
			if *forwardOriginIP, err = strconv.ParseBool(val); err != nil {
				logger.Fatal("Couldn't convert environment variable from string to bool", zap.Error(err), zap.String("envVar", "FORWARD_ORIGIN_IP"))
			}
		}
	}
	result.ForwardOriginIP = *forwardOriginIP

	if !isArgSet("originIPHeader") {
		if val, ok := os.LookupEnv(*envPrefix + "ORIGIN_IP_HEADER"); ok {
			*originIPHeader = val
		}
	}
	result.OriginIPHeader = *originIPHeader

	if !isArgSet("overrideOriginIP") {
		if val, ok := os.LookupEnv(*envPrefix + "OVERRIDE_ORIGIN_IP"); ok {
			*overrideOriginIP = val
		}
	}
	result.OverrideOriginIP = *overrideOriginIP

	return result
}

func (c *config) validate(logger *zap.Logger) {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if len(c.JackettIndexers) == 0 {
		logger.Fatal("At least one Jackett indexer must be configured")
	}
	if c.SearchWorkers <= 0 {
		c.SearchWorkers = len(c.JackettIndexers)
	}
	if c.ProcessWorkers <= 0 {
		c.ProcessWorkers = 2 * runtime.NumCPU()
	}

	if c.LogEncoding != "console" && c.LogEncoding != "json" {
		logger.Fatal(`logEncoding must be one of "console" or "json"`, zap.String("logEncoding", c.LogEncoding))
	}
}

// isArgSet returns true if the argument you're looking for is actually set as command line argument.
// Pass without "-" prefix.
func isArgSet(arg string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == arg {
			found = true
		}
	})
	return found
}
