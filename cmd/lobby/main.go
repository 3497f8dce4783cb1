// lobby - presence and matchmaking rendezvous for 3SX netplay
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ernie/netplay-lobby/internal/api"
	"github.com/ernie/netplay-lobby/internal/auth"
	"github.com/ernie/netplay-lobby/internal/bus"
	"github.com/ernie/netplay-lobby/internal/client"
	"github.com/ernie/netplay-lobby/internal/config"
	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/ernie/netplay-lobby/internal/presence"
	"github.com/ernie/netplay-lobby/internal/storage"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var version = "dev"

const defaultURL = "http://localhost:3000"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "searching":
		cmdSearching(os.Args[2:])
	case "matches":
		cmdMatches(os.Args[2:])
	case "sign":
		cmdSign(os.Args[2:])
	case "version":
		fmt.Printf("lobby %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: lobby <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the lobby server")
	fmt.Println("  status                              Show players online and searching")
	fmt.Println("  searching [--region R]              List players currently searching")
	fmt.Println("  matches [--recent N] [--player ID]  Show recent matches")
	fmt.Println("  matches --id MATCH_ID               Show one match")
	fmt.Println("  sign <METHOD> <PATH> [BODY]         Print signed auth headers for a request")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (optional, env vars override it)")
	fmt.Println("  --url <url>        Base URL of the lobby server (default: http://localhost:3000)")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  LOBBY_SECRET       Shared HMAC key (required)")
	fmt.Println("  LOBBY_PORT         HTTP port (default: 3000)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  LOBBY_SECRET=... lobby serve")
	fmt.Println("  lobby searching --region NA")
	fmt.Println("  lobby sign POST /leave '{\"player_id\":\"abc\"}'")
}

// cmdServe starts the lobby server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "log format (console, json)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("lobby starting",
		zap.String("version", version),
		zap.Int("secret_length", len(cfg.Auth.Secret)),
		zap.Duration("stale_after", cfg.Presence.StaleAfter),
		zap.Duration("sweep_interval", cfg.Presence.SweepInterval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.New()
	store := presence.NewStore(clk, logger.Named("presence"))
	evictor := presence.NewEvictor(store, clk, logger.Named("evictor"),
		cfg.Presence.SweepInterval, cfg.Presence.StaleAfter)
	evictor.Start(ctx)

	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.MaxSkew, clk)

	opts := api.Options{
		ServiceName:  cfg.Server.ServiceName,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}

	var sinks []bus.Sink

	if cfg.Database.Path != "" {
		history, err := storage.New(cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to open match history", zap.String("path", cfg.Database.Path), zap.Error(err))
		}
		defer history.Close()
		opts.History = history
		sinks = append(sinks, history)
		logger.Info("match history enabled", zap.String("path", cfg.Database.Path))
	}

	if cfg.NATS.URL != "" {
		publisher, err := bus.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger.Named("nats"))
		if err != nil {
			logger.Fatal("failed to connect to nats", zap.String("url", cfg.NATS.URL), zap.Error(err))
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info("publishing events to nats", zap.String("subject", cfg.NATS.Subject))
	}

	router := api.NewRouter(store, verifier, logger.Named("api"), opts)
	router.StartFeed(ctx)
	sinks = append(sinks, router.Feed())

	dispatcher := bus.NewDispatcher(logger.Named("bus"), sinks...)
	go dispatcher.Run(ctx, store.Events())

	addr := cfg.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-serverErr:
		logger.Fatal("http server error", zap.Error(err))
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}

	evictor.Stop()
	cancel()
	logger.Info("shutdown complete")
}

// newLogger builds a zap logger from config
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = level
	return zcfg.Build()
}

// newCLIClient builds an API client from the common CLI flags
func newCLIClient(configPath, url string) *client.Client {
	secret := os.Getenv("LOBBY_SECRET")
	if secret == "" && configPath != "" {
		if cfg, err := config.Load(configPath); err == nil {
			secret = cfg.Auth.Secret
		}
	}
	if url == "" {
		url = defaultURL
	}
	return client.New(url, secret)
}

// cmdStatus shows registry counts from the health endpoint
func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	url := fs.String("url", "", "base URL of the lobby server")
	fs.Parse(args)

	c := newCLIClient(*configPath, *url)
	health, err := c.Health(context.Background())
	if err != nil {
		fatalf("Error: %v", err)
	}

	fmt.Printf("Service:    %s\n", health.Service)
	fmt.Printf("Online:     %d\n", health.PlayersOnline)
	fmt.Printf("Searching:  %d\n", health.PlayersSearching)
}

// cmdSearching lists searching players
func cmdSearching(args []string) {
	fs := flag.NewFlagSet("searching", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	url := fs.String("url", "", "base URL of the lobby server")
	region := fs.String("region", "", "only show players in this region")
	fs.Parse(args)

	c := newCLIClient(*configPath, *url)
	players, err := c.Searching(context.Background(), *region)
	if err != nil {
		fatalf("Error: %v", err)
	}

	if len(players) == 0 {
		fmt.Println("No players searching")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER ID\tNAME\tREGION\tROOM CODE\tCONNECT TO\tRTT")
	fmt.Fprintln(w, "---------\t----\t------\t---------\t----------\t---")
	for _, p := range players {
		rtt := "-"
		if p.RTTMs >= 0 {
			rtt = fmt.Sprintf("%dms", p.RTTMs)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.PlayerID, p.DisplayName, orDash(p.Region), orDash(p.RoomCode), orDash(p.ConnectTo), rtt)
	}
	w.Flush()
}

// cmdMatches shows recent matches, reading the database directly when --db is set
func cmdMatches(args []string) {
	fs := flag.NewFlagSet("matches", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	url := fs.String("url", "", "base URL of the lobby server")
	dbPath := fs.String("db", "", "read a match history database directly")
	limit := fs.Int("recent", 20, "number of recent matches to show")
	playerID := fs.String("player", "", "only show matches for this player ID")
	matchID := fs.String("id", "", "show a single match by ID")
	fs.Parse(args)

	ctx := context.Background()

	var (
		matches []matchRow
		err     error
	)
	switch {
	case *matchID != "" && *dbPath != "":
		matches, err = matchFromDB(ctx, *dbPath, *matchID)
	case *matchID != "":
		matches, err = matchFromAPI(ctx, newCLIClient(*configPath, *url), *matchID)
	case *dbPath != "":
		matches, err = matchesFromDB(ctx, *dbPath, *playerID, *limit)
	default:
		matches, err = matchesFromAPI(ctx, newCLIClient(*configPath, *url), *playerID, *limit)
	}
	if err != nil {
		fatalf("Error: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MATCHED AT\tFROM\tTO\tROOM CODE\tCONNECT TO")
	fmt.Fprintln(w, "----------\t----\t--\t---------\t----------")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.at, m.from, m.to, m.roomCode, m.connectTo)
	}
	w.Flush()
}

type matchRow struct {
	at, from, to, roomCode, connectTo string
}

func matchesFromDB(ctx context.Context, path, playerID string, limit int) ([]matchRow, error) {
	store, err := storage.New(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var matches []domain.Match
	if playerID != "" {
		matches, err = store.GetPlayerMatches(ctx, playerID, limit)
	} else {
		matches, err = store.GetRecentMatches(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	return toMatchRows(matches), nil
}

func matchFromDB(ctx context.Context, path, id string) ([]matchRow, error) {
	store, err := storage.New(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	m, err := store.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	return toMatchRows([]domain.Match{*m}), nil
}

func matchFromAPI(ctx context.Context, c *client.Client, id string) ([]matchRow, error) {
	m, err := c.Match(ctx, id)
	if err != nil {
		return nil, err
	}
	return toMatchRows([]domain.Match{*m}), nil
}

func matchesFromAPI(ctx context.Context, c *client.Client, playerID string, limit int) ([]matchRow, error) {
	matches, err := c.Matches(ctx, playerID, limit)
	if err != nil {
		return nil, err
	}
	return toMatchRows(matches), nil
}

func toMatchRows(matches []domain.Match) []matchRow {
	rows := make([]matchRow, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, matchRow{
			at:        m.MatchedAt.Local().Format(time.DateTime),
			from:      m.FromName,
			to:        m.ToName,
			roomCode:  m.RoomCode,
			connectTo: m.ConnectTo,
		})
	}
	return rows
}

// cmdSign prints the auth headers for a request so it can be sent by hand
func cmdSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	curl := fs.Bool("curl", false, "print header flags for curl")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: lobby sign <METHOD> <PATH> [BODY|-]")
		os.Exit(1)
	}
	method := strings.ToUpper(fs.Arg(0))
	path := fs.Arg(1)

	var body []byte
	switch fs.Arg(2) {
	case "":
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fatalf("Error reading body: %v", err)
		}
		body = data
	default:
		body = []byte(fs.Arg(2))
	}

	secret := os.Getenv("LOBBY_SECRET")
	if secret == "" && *configPath != "" {
		if cfg, err := config.Load(*configPath); err == nil {
			secret = cfg.Auth.Secret
		}
	}
	if secret == "" {
		s, err := promptSecret()
		if err != nil {
			fatalf("Error: %v", err)
		}
		secret = s
	}

	headers := client.New("", secret).SignHeaders(method, path, body)
	ts := headers.Get(auth.HeaderTimestamp)
	sig := headers.Get(auth.HeaderSignature)
	if *curl {
		fmt.Printf("-H '%s: %s' -H '%s: %s'\n", auth.HeaderTimestamp, ts, auth.HeaderSignature, sig)
		return
	}
	fmt.Printf("%s: %s\n", auth.HeaderTimestamp, ts)
	fmt.Printf("%s: %s\n", auth.HeaderSignature, sig)
}

// promptSecret reads the shared secret from the terminal without echo
func promptSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("LOBBY_SECRET is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Lobby secret: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("secret must not be empty")
	}
	return string(secret), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
