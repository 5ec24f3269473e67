package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/deflix-tv/go-stremio"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/annatar-tv/annatar/pkg/cinemeta"
	"github.com/annatar-tv/annatar/pkg/db"
	"github.com/annatar-tv/annatar/pkg/debrid"
	"github.com/annatar-tv/annatar/pkg/debrid/alldebrid"
	"github.com/annatar-tv/annatar/pkg/debrid/debridlink"
	"github.com/annatar-tv/annatar/pkg/debrid/offcloud"
	"github.com/annatar-tv/annatar/pkg/debrid/premiumize"
	"github.com/annatar-tv/annatar/pkg/debrid/realdebrid"
	"github.com/annatar-tv/annatar/pkg/jackett"
	"github.com/annatar-tv/annatar/pkg/magnet"
	"github.com/annatar-tv/annatar/pkg/odm"
	"github.com/annatar-tv/annatar/pkg/processor"
	"github.com/annatar-tv/annatar/pkg/pubsub"
	"github.com/annatar-tv/annatar/pkg/stream"
)

const (
	version = "0.5.1"
)

// Timeout used for HTTP requests in the cinemeta and debrid clients.
var timeout = 10 * time.Second

func init() {
	// Timeout for global default HTTP client (for when using `http.Get()`)
	http.DefaultClient.Timeout = 5 * time.Second

	// Make predicting "random" numbers harder
	rand.Seed(time.Now().UnixNano())
}

func main() {
	mainCtx, cancel := context.WithCancel(context.Background())

	// Create an "info" logger at first, replace later in case the logging level is configured to be something else
	logger, err := stremio.NewLogger("info", stremio.DefaultOptions.LogEncoding)
	if err != nil {
		panic(err)
	}

	// Parse and validate config

	logger.Info("Parsing config...")
	config := parseConfig(logger)
	configJSON, err := json.Marshal(config)
	if err != nil {
		logger.Fatal("Couldn't marshal config to JSON", zap.Error(err))
	}
	if config.LogLevel != "info" || config.LogEncoding != stremio.DefaultOptions.LogEncoding {
		// Replace previously created logger
		if logger, err = stremio.NewLogger(config.LogLevel, config.LogEncoding); err != nil {
			logger.Fatal("Couldn't create new logger", zap.Error(err))
		}
	}
	logger.Info("Parsed config", zap.ByteString("config", configJSON))

	config.validate(logger)
	logger.Info("Validated config")

	// Connect to Redis, which holds all state

	dbClient, err := db.NewClient(mainCtx, config.RedisAddr, config.RedisCreds, config.Namespace, logger)
	if err != nil {
		logger.Fatal("Couldn't connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := multierr.Combine(dbClient.Close(), logger.Sync()); err != nil {
			logger.Error("Couldn't close all resources", zap.Error(err))
		}
	}()

	// Create clients

	logger.Info("Initializing clients...")
	start := time.Now()

	store := odm.NewStore(dbClient, logger)
	bus := pubsub.NewBus(dbClient, logger)
	cinemetaOpts := cinemeta.NewClientOpts(cinemeta.DefaultClientOpts.BaseURL, timeout)
	cinemetaClient := cinemeta.NewClient(cinemetaOpts, cinemeta.NewInMemoryCache(), logger)

	jackettOpts := jackett.NewClientOpts(config.BaseURLjackett, config.JackettAPIkey, config.JackettTimeout, config.JackettCacheAge)
	jackettClient := jackett.NewClient(jackettOpts, dbClient, logger)
	searcher := jackett.NewSearcher(cinemetaClient, dbClient, bus, config.SearchFreshness, logger)
	workerOpts := jackett.WorkerOptions{
		Indexers:   config.JackettIndexers,
		MaxResults: config.JackettMaxResults,
		LockTTL:    jackett.DefaultWorkerOpts.LockTTL,
	}
	searchWorker := jackett.NewWorker(jackettClient, cinemetaClient, dbClient, bus, workerOpts, logger)

	magnetResolver := magnet.NewResolver(magnet.DefaultResolverOpts, dbClient, logger)
	torrentProcessor := processor.New(store, dbClient, bus, magnetResolver, logger)

	rdOpts := realdebrid.NewClientOpts(config.BaseURLrd, timeout, config.ExtraHeadersRD)
	rdClient, err := realdebrid.NewClient(rdOpts, dbClient, logger)
	if err != nil {
		logger.Fatal("Couldn't create RealDebrid client", zap.Error(err))
	}
	adClient, err := alldebrid.NewClient(alldebrid.NewClientOpts(config.BaseURLad, timeout), logger)
	if err != nil {
		logger.Fatal("Couldn't create AllDebrid client", zap.Error(err))
	}
	pmClient, err := premiumize.NewClient(premiumize.NewClientOpts(config.BaseURLpm, timeout), logger)
	if err != nil {
		logger.Fatal("Couldn't create Premiumize client", zap.Error(err))
	}
	dlClient, err := debridlink.NewClient(debridlink.NewClientOpts(config.BaseURLdl, timeout), logger)
	if err != nil {
		logger.Fatal("Couldn't create Debrid-Link client", zap.Error(err))
	}
	ocClient, err := offcloud.NewClient(offcloud.NewClientOpts(config.BaseURLoc, timeout), logger)
	if err != nil {
		logger.Fatal("Couldn't create OffCloud client", zap.Error(err))
	}
	registry := debrid.NewRegistry(rdClient, adClient, pmClient, dlClient, ocClient)

	resolverOpts := stream.ResolverOptions{SearchTimeout: config.SearchTimeout}
	streamResolver := stream.NewResolver(resolverOpts, store, dbClient, searcher, logger)

	duration := time.Since(start).Milliseconds()
	durationString := strconv.FormatInt(duration, 10) + "ms"
	logger.Info("Initialized clients", zap.String("duration", durationString))

	// Start the search pipeline consumers

	go searchWorker.Run(mainCtx, config.SearchWorkers)
	go torrentProcessor.Run(mainCtx, config.ProcessWorkers)
	logger.Info("Started search pipeline",
		zap.Int("searchWorkers", config.SearchWorkers),
		zap.Int("processWorkers", config.ProcessWorkers),
		zap.Strings("indexers", config.JackettIndexers))

	// Prepare addon creation

	streamHandler := createStreamHandler(config, registry, streamResolver, logger)
	streamHandlers := map[string]stremio.StreamHandler{"movie": streamHandler, "series": streamHandler}

	options := stremio.Options{
		BindAddr: config.BindAddr,
		Port:     config.Port,
		// We already have a logger
		Logger: logger,
		LogIPs: true,
		// Regular IMDb IDs or for TV shows (IMDbID:season:episode)
		StreamIDregex: `^tt\d{7,8}(:\d+:\d+)?$`,
	}

	// Create addon

	addon, err := stremio.NewAddon(manifest, nil, streamHandlers, options)
	if err != nil {
		logger.Fatal("Couldn't create new addon", zap.Error(err))
	}
	addon.SetManifestCallback(createManifestCallback(registry, logger))

	// Customize addon

	configMiddleware := createConfigMiddleware(registry, logger)
	addon.AddMiddleware("/:userData/stream/:type/:id.json", configMiddleware)

	// Resolve endpoints for the services whose stream URLs point back to this
	// addon. Premiumize and OffCloud serve direct URLs, so they have none.
	// Stremio sends a HEAD request before starting a stream, and some players
	// append the file name to get a nicer title.
	rdResolveHandler := createResolveHandler(rdClient, config, logger)
	addon.AddEndpoint("GET", "/rd/:apiKey/:infoHash/:file", rdResolveHandler)
	addon.AddEndpoint("HEAD", "/rd/:apiKey/:infoHash/:file", rdResolveHandler)
	addon.AddEndpoint("GET", "/rd/:apiKey/:infoHash/:file/:fileName", rdResolveHandler)
	addon.AddEndpoint("HEAD", "/rd/:apiKey/:infoHash/:file/:fileName", rdResolveHandler)
	adResolveHandler := createResolveHandler(adClient, config, logger)
	addon.AddEndpoint("GET", "/ad/:apiKey/:infoHash/:file", adResolveHandler)
	addon.AddEndpoint("HEAD", "/ad/:apiKey/:infoHash/:file", adResolveHandler)
	dlResolveHandler := createResolveHandler(dlClient, config, logger)
	addon.AddEndpoint("GET", "/dl/:apiKey/:infoHash/:file", dlResolveHandler)
	addon.AddEndpoint("HEAD", "/dl/:apiKey/:infoHash/:file", dlResolveHandler)

	// Debug listing of the stored torrents per media
	hashesHandler := createHashesHandler(streamResolver, logger)
	addon.AddEndpoint("GET", "/api/v2/hashes/:imdb", hashesHandler)

	addon.AddEndpoint("GET", "/metrics", createMetricsHandler())

	// Start addon

	stoppingChan := make(chan bool, 1)
	go func() {
		<-stoppingChan
		cancel()
	}()

	addon.Run(stoppingChan)
}
