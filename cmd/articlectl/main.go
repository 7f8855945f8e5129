package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/ixe-agent/articleapi/common"
	"github.com/ixe-agent/articleapi/config"
	"github.com/ixe-agent/articleapi/modules/api"
	"github.com/ixe-agent/articleapi/modules/articles"
	"github.com/ixe-agent/articleapi/modules/auth"
	"github.com/ixe-agent/articleapi/modules/session"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitExpired = 3
)

const sessionExpiredNotice = "Session expired: your login is no longer valid. Please sign in again."

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// app holds everything a command needs.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	sess    *session.Session
	service articles.ArticleService
	stdout  io.Writer
	stderr  io.Writer
	closers []func() error
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("articlectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailure
	}

	log := setupLogger(cfg.Env, stderr)
	slog.SetDefault(log)
	ctx = common.IntoLogger(ctx, log)

	a, err := newApp(ctx, cfg, log, stdout, stderr)
	if err != nil {
		log.Error("init_failed", slog.String("err", err.Error()))
		return exitFailure
	}
	defer a.close()

	err = cmd.run(ctx, a, fs.Args()[1:])
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, api.ErrSessionExpired):
		return exitExpired
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		fmt.Fprintf(stderr, "%s: %v\n", fs.Arg(0), err)
		return exitFailure
	}
}

// newApp wires config → token store → session → HTTP client → auth client →
// API client → articles service.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, stdout, stderr io.Writer) (*app, error) {
	a := &app{cfg: cfg, log: log, stdout: stdout, stderr: stderr}

	var store session.TokenStore
	switch cfg.Store.Driver {
	case config.StoreRedis:
		rs, err := session.NewRedisStore(ctx, cfg.Store.RedisURL, cfg.Store.Key)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	default:
		store = session.NewMemoryStore()
	}

	a.sess = session.New(store)
	if err := a.sess.Load(ctx); err != nil {
		if !errors.Is(err, session.ErrNoCredentials) {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if cfg.Auth.AccessToken != "" {
			tok := &oauth2.Token{
				AccessToken:  cfg.Auth.AccessToken,
				RefreshToken: cfg.Auth.RefreshToken,
				Expiry:       auth.TokenExpiry(cfg.Auth.AccessToken),
			}
			if err := a.sess.Login(ctx, tok); err != nil {
				return nil, err
			}
			log.Debug("session_seeded_from_config")
		}
	}
	if tok, err := a.sess.Token(); err == nil && !tok.Valid() {
		log.Info("access_token_expired", slog.Time("expiry", tok.Expiry))
	}

	var metrics *common.Metrics
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics = common.NewMetrics(reg)
		stop, err := serveMetrics(cfg.Metrics.Addr, reg, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, stop)
	}

	hc := common.NewApiHttpClient(cfg.API.UserAgent, &http.Client{}, cfg.API.Timeout)
	a.closers = append(a.closers, func() error { hc.CloseIdleConnections(); return nil })

	authClient, err := auth.NewAuthClient(cfg.API.BaseURL, cfg.API.RefreshPath, hc)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(cfg.API.BaseURL, hc, a.sess, authClient,
		api.WithLogger(log),
		api.WithMetrics(metrics),
		api.WithSessionExpiredHandler(a.onSessionExpired),
	)
	if err != nil {
		return nil, err
	}

	cache := common.NewCacheStore(cfg.Cache.TTL, cfg.Cache.Cleanup)
	a.service = articles.NewArticleService(client, cache, cfg.Cache.TTL)
	return a, nil
}

// onSessionExpired tells the user to sign in again and drops the stored
// credentials.
func (a *app) onSessionExpired(ctx context.Context, err error) {
	fmt.Fprintln(a.stderr, sessionExpiredNotice)
	a.log.Info("session_cleared", slog.String("reason", err.Error()))
	if lerr := a.sess.Logout(ctx); lerr != nil {
		a.log.Warn("session_clear_failed", slog.String("err", lerr.Error()))
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close_failed", slog.String("err", err.Error()))
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) (func() error, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	log.Info("metrics_listen_start", slog.String("addr", ln.Addr().String()))

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_serve_failed", slog.String("err", err.Error()))
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}

func setupLogger(env string, w io.Writer) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
