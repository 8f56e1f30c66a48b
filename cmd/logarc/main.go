// Package main is the entry point for the logarc server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rybkr/logarc"
	"github.com/rybkr/logarc/internal/cache"
	"github.com/rybkr/logarc/internal/config"
	"github.com/rybkr/logarc/internal/progress"
	"github.com/rybkr/logarc/internal/search"
	"github.com/rybkr/logarc/internal/server"
	"github.com/rybkr/logarc/internal/statesync"
	"github.com/rybkr/logarc/internal/termcolor"
	"github.com/rybkr/logarc/internal/tuning"
	"github.com/rybkr/logarc/internal/workspace"
)

const outputFormatJS = "json"

// defaultIngestWorkers seeds both the ingest pool's starting size and the
// resource manager's notion of "current workers"; they must agree so the
// first ComputeOptimalWorkers call scales relative to the pool that is
// actually running.
const defaultIngestWorkers = 3

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	initLogger()

	dataDir := flag.String("data-dir", getEnv("LOGARC_DATA_DIR", "/data/workspaces"), "Data directory for managed workspaces")
	configPath := flag.String("config", getEnv("LOGARC_CONFIG", ""), "Path to a YAML config file")
	port := flag.String("port", getEnv("LOGARC_PORT", "8080"), "Port to listen on")
	host := flag.String("host", getEnv("LOGARC_HOST", ""), "Host to bind to (empty = all interfaces)")
	redisAddr := flag.String("redis", getEnv("LOGARC_REDIS_ADDR", ""), "Redis URL for the L2 result cache (empty disables it)")
	colorFlag := flag.String("color", "auto", "Color output: auto, always, never")
	noColor := flag.Bool("no-color", false, "Disable color output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	showHelp := flag.Bool("help", false, "Show help and exit")
	outputFormat := flag.String("output", "", "Startup output format: json (default: human-readable)")

	flag.Parse()

	colorMode := termcolor.ColorAuto
	if *noColor {
		colorMode = termcolor.ColorNever
	} else if *colorFlag != "auto" {
		var err error
		colorMode, err = termcolor.ParseColorMode(*colorFlag)
		if err != nil {
			slog.Error("Invalid color flag", "value", *colorFlag, "err", err)
			os.Exit(1)
		}
	}
	cw := termcolor.NewWriter(os.Stdout, colorMode)

	portNum, _ := strconv.Atoi(*port)
	if err := validatePort(portNum); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cw.Red("error:"), err)
		os.Exit(1)
	}

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp(cw)
		os.Exit(0)
	}

	webFS, err := logarc.GetWebFS()
	if err != nil {
		slog.Error("Failed to load web assets", "err", err)
		os.Exit(1)
	}

	spin := progress.New("Loading configuration...")
	spin.Start()
	loadStart := time.Now()
	cfg, err := config.Load(*configPath, nil)
	if err == nil {
		err = config.Validate(cfg)
	}
	loadDur := time.Since(loadStart).Round(time.Millisecond)
	spin.Stop()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	var resultCache *cache.Cache
	if *redisAddr != "" {
		l2, err := cache.NewL2(*redisAddr)
		if err != nil {
			slog.Error("Failed to connect L2 cache", "err", err)
			os.Exit(1)
		}
		resultCache = cache.New(cfg.CacheConfigValue(), l2, slog.Default())
	} else {
		resultCache = cache.New(cfg.CacheConfigValue(), nil, slog.Default())
	}

	searchEngine, err := search.New(cfg.SearchConfigValue(), slog.Default())
	if err != nil {
		slog.Error("Failed to start search engine", "err", err)
		os.Exit(1)
	}

	hub := statesync.NewHub(statesync.HubConfig{
		Config: statesync.DefaultConfig(),
		Logger: slog.Default(),
	})

	cacheCfg := cfg.CacheConfigValue()
	cacheTuner := tuning.NewCacheTuner(tuning.DefaultCacheTunerConfig(), int64(cacheCfg.MaxCapacity), cacheCfg.TTL)
	indexOptimizer := tuning.NewIndexOptimizer(tuning.DefaultIndexOptimizerConfig())

	wsManager, err := workspace.New(workspace.Config{
		DataDir:              *dataDir,
		MaxConcurrentIngests: defaultIngestWorkers,
	}, workspace.Deps{
		ExtractConfig:  cfg.ExtractConfig(),
		PathConfig:     cfg.PathConfig(),
		SecurityConfig: cfg.SecurityConfigValue(),
		Search:         searchEngine,
		Cache:          resultCache,
		StateSync:      hub,

		CacheTuner:      cacheTuner,
		IndexOptimizer:  indexOptimizer,
		ResourceManager: tuning.NewResourceManager(tuning.DefaultWorkerScalingConfig(), defaultIngestWorkers),
		QueryOptimizer:  tuning.NewQueryOptimizer(indexOptimizer),
	}, slog.Default())
	if err != nil {
		slog.Error("Failed to create workspace manager", "err", err)
		os.Exit(1)
	}
	wsManager.Start()

	cfgManager, err := config.NewManager(cfg)
	if err != nil {
		slog.Error("Failed to initialize configuration manager", "err", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%s", *host, *port)
	serv := server.New(server.Deps{
		Workspaces: wsManager,
		Config:     cfgManager,
		Hub:        hub,
		Logger:     slog.Default(),
	}, addr, webFS)

	slog.Info("Starting logarc", "version", version)
	slog.Info("Data directory", "path", *dataDir)
	slog.Info("Listening", "addr", "http://"+addr)

	if *outputFormat == outputFormatJS {
		printStartupJSON(addr, *dataDir, loadDur)
	} else {
		printStartupBanner(cw, addr, *dataDir, loadDur)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- serv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("Shutdown initiated, press Ctrl+C again to force exit")
		stop()
		serv.Shutdown()
		wsManager.Close()
	}
}

// initLogger reads LOGARC_LOG_LEVEL and LOGARC_LOG_FORMAT from the
// environment, constructs the appropriate slog.Handler, and installs it as
// the default logger via slog.SetDefault.
func initLogger() {
	level := slog.LevelInfo
	switch getEnv("LOGARC_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("LOGARC_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func validatePort(portNum int) error {
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func printVersion() {
	fmt.Printf("logarc %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printStartupBanner(cw *termcolor.Writer, addr, dataDir string, loadDur time.Duration) {
	fmt.Printf("%s %s\n", cw.BoldCyan("logarc"), cw.Green(version))
	fmt.Printf("  data:    %s  %s\n", dataDir, fmt.Sprintf("(config loaded in %s)", cw.Yellow(loadDur.String())))
	fmt.Printf("  listen:  http://%s\n", addr)
	fmt.Printf("  commit:  %s\n", commit)
	if termcolor.IsTerminal(os.Stdout.Fd()) {
		fmt.Printf("\n%s\n", cw.Bold("Press Ctrl+C to stop."))
	}
}

type startupInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Listen    string `json:"listen"`
	DataDir   string `json:"data_dir"`
	ConfigMs  int64  `json:"config_load_ms"`
}

func printStartupJSON(addr, dataDir string, loadDur time.Duration) {
	info := startupInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		Listen:    "http://" + addr,
		DataDir:   dataDir,
		ConfigMs:  loadDur.Milliseconds(),
	}
	data, _ := json.Marshal(info)
	fmt.Println(string(data))
}

func printHelp(cw *termcolor.Writer) {
	fmt.Println("logarc - Log archive workspace management engine")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println(cw.Bold("Usage:"))
	fmt.Println("  logarc [flags]")
	fmt.Println()
	fmt.Println(cw.Bold("Flags:"))
	fmt.Printf("  %s string\n", cw.Yellow("-data-dir"))
	fmt.Println("        Data directory for managed workspaces (default: /data/workspaces)")
	fmt.Println("        Environment: LOGARC_DATA_DIR")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-config"))
	fmt.Println("        Path to a YAML config file")
	fmt.Println("        Environment: LOGARC_CONFIG")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-port"))
	fmt.Println("        Port to listen on (default: 8080)")
	fmt.Println("        Environment: LOGARC_PORT")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-host"))
	fmt.Println("        Host to bind to (default: all interfaces)")
	fmt.Println("        Environment: LOGARC_HOST")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-redis"))
	fmt.Println("        Redis URL for the L2 result cache")
	fmt.Println("        Environment: LOGARC_REDIS_ADDR")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-output"))
	fmt.Println("        Startup output format: json (default: human-readable)")
	fmt.Println()
	fmt.Printf("  %s\n", cw.Yellow("-version"))
	fmt.Println("        Show version and exit")
	fmt.Println()
	fmt.Printf("  %s\n", cw.Yellow("-help"))
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println(cw.Bold("Examples:"))
	fmt.Println("  logarc -data-dir /srv/logarc")
	fmt.Println("  logarc -port 9090 -redis redis://localhost:6379")
	fmt.Println()
	fmt.Println(cw.Bold("Environment Variables:"))
	fmt.Println("  LOGARC_DATA_DIR       Data directory")
	fmt.Println("  LOGARC_CONFIG         Path to a YAML config file")
	fmt.Println("  LOGARC_PORT           Default port")
	fmt.Println("  LOGARC_HOST           Default host")
	fmt.Println("  LOGARC_REDIS_ADDR     Redis URL for the L2 result cache")
	fmt.Println("  LOGARC_LOG_LEVEL      Log level: debug, info, warn, error (default: info)")
	fmt.Println("  LOGARC_LOG_FORMAT     Log format: text, json (default: text)")
}
