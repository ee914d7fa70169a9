package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/bid-front/internal/adminauth"
	"github.com/dgellow/bid-front/internal/authsync"
	"github.com/dgellow/bid-front/internal/config"
	"github.com/dgellow/bid-front/internal/cookie"
	"github.com/dgellow/bid-front/internal/crypto"
	"github.com/dgellow/bid-front/internal/idp"
	jsonwriter "github.com/dgellow/bid-front/internal/json"
	"github.com/dgellow/bid-front/internal/log"
	"github.com/dgellow/bid-front/internal/proxy"
	"github.com/dgellow/bid-front/internal/server"
	"github.com/dgellow/bid-front/internal/storage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// BidFront is the main application struct
type BidFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	limiter    *server.RateLimiter
	hub        *authsync.Hub
	ledger     storage.Ledger
}

// NewBidFront creates a new BidFront instance with the provided configuration
func NewBidFront(ctx context.Context, cfg config.Config) (*BidFront, error) {
	log.LogInfoWithFields("bidfront", "Initializing bid-front", map[string]any{
		"addr":               cfg.Addr,
		"identityConfigured": cfg.IdentityConfigured(),
		"ledger":             string(cfg.Ledger.Storage),
		"admins":             len(cfg.AdminEmails),
	})

	jar, err := setupCookieJar(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup session cookies: %w", err)
	}

	ledger, err := setupLedger(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup sign-in ledger: %w", err)
	}

	sessions := setupSessions(cfg, jar)
	hub := authsync.NewHub()
	limiter := server.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.TrustedProxies)

	handler, err := buildHTTPHandler(cfg, jar, sessions, hub, ledger, limiter)
	if err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &BidFront{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Addr),
		limiter:    limiter,
		hub:        hub,
		ledger:     ledger,
	}, nil
}

// Run starts the server and blocks until a signal or a server error stops it
func (b *BidFront) Run() error {
	log.LogInfoWithFields("bidfront", "Starting bid-front", map[string]any{
		"addr": b.config.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		b.limiter.Run(gctx)
		return nil
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		var shutdownReason string
		select {
		case sig := <-sigChan:
			shutdownReason = fmt.Sprintf("signal %v", sig)
			log.LogInfoWithFields("bidfront", "Received shutdown signal", map[string]any{
				"signal": sig.String(),
			})
		case <-gctx.Done():
			shutdownReason = "server stopped"
		}

		log.LogInfoWithFields("bidfront", "Starting graceful shutdown", map[string]any{
			"reason":  shutdownReason,
			"timeout": shutdownTimeout.String(),
		})
		defer cancel()
		return b.shutdown()
	})

	return g.Wait()
}

func (b *BidFront) shutdown() error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Sync streams only end when their subscription closes.
	b.hub.Close()

	if err := b.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("bidfront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if err := b.ledger.Close(); err != nil {
		log.LogWarnWithFields("bidfront", "Failed to close sign-in ledger", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("bidfront", "Application shutdown complete", nil)
	return nil
}

func setupCookieJar(cfg config.Config) (*cookie.Jar, error) {
	var codec cookie.Codec = cookie.PlainCodec{}
	if key := string(cfg.Session.EncryptionKey); key != "" {
		enc, err := crypto.NewEncryptor([]byte(key))
		if err != nil {
			return nil, fmt.Errorf("invalid session encryption key: %w", err)
		}
		codec = cookie.NewSealedCodec(enc)
	}
	return cookie.NewJar(cfg.SessionCookieName(), cfg.Session.MaxAge, codec), nil
}

// setupSessions returns nil when the identity service is not configured
func setupSessions(cfg config.Config, jar *cookie.Jar) *idp.SessionStore {
	if !cfg.IdentityConfigured() {
		return nil
	}
	client := idp.NewClient(cfg.Identity.URL, string(cfg.Identity.AnonKey), &http.Client{Timeout: cfg.HTTPTimeout})
	return idp.NewSessionStore(client, jar)
}

func setupLedger(ctx context.Context, cfg config.Config) (storage.Ledger, error) {
	switch cfg.Ledger.Storage {
	case config.LedgerFirestore:
		log.LogInfoWithFields("bidfront", "Using Firestore sign-in ledger", map[string]any{
			"project":    cfg.Ledger.GCPProject,
			"database":   cfg.Ledger.Database,
			"collection": cfg.Ledger.Collection,
		})
		return storage.NewFirestoreLedger(ctx, cfg.Ledger.GCPProject, cfg.Ledger.Database, cfg.Ledger.Collection)
	case config.LedgerMemory, "":
		log.LogInfoWithFields("bidfront", "Using in-memory sign-in ledger", nil)
		return storage.NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger storage: %s", cfg.Ledger.Storage)
	}
}

func buildHTTPHandler(
	cfg config.Config,
	jar *cookie.Jar,
	sessions *idp.SessionStore,
	hub *authsync.Hub,
	ledger storage.Ledger,
	limiter *server.RateLimiter,
) (http.Handler, error) {
	mux := http.NewServeMux()

	deps := server.AuthDeps{
		Sessions: sessions,
		Jar:      jar,
		SiteURL:  cfg.SiteURL,
		Hub:      hub,
		Ledger:   ledger,
	}
	authHandlers := server.NewAuthHandlers(deps)
	syncHandlers := server.NewSyncHandlers(hub, jar, 0)
	adminHandlers := server.NewAdminHandlers(ledger)

	rateLimited := limiter.Middleware()
	sameOrigin := server.NewSameOriginMiddleware(cfg.SiteURL, cfg.AllowedOrigins)

	mux.Handle("GET /health", server.NewHealthHandler())

	mux.Handle("GET /auth-callback", server.ChainMiddleware(server.NewCallbackHandler(deps), rateLimited))
	mux.Handle("GET /auth/login/{provider}", server.ChainMiddleware(http.HandlerFunc(authHandlers.LoginHandler), rateLimited))
	mux.HandleFunc("GET /auth/session", authHandlers.SessionHandler)
	mux.Handle("POST /auth/refresh", server.ChainMiddleware(http.HandlerFunc(authHandlers.RefreshHandler), sameOrigin))
	mux.Handle("POST /auth/logout", server.ChainMiddleware(http.HandlerFunc(authHandlers.LogoutHandler), sameOrigin))

	mux.HandleFunc("GET /auth/sync/events", syncHandlers.EventsHandler)
	mux.Handle("POST /auth/sync/publish", server.ChainMiddleware(http.HandlerFunc(syncHandlers.PublishHandler), sameOrigin))

	mux.HandleFunc("GET /admin/api/sign-ins", adminHandlers.SignInsHandler)

	if cfg.UpstreamURL != "" {
		upstream, err := proxy.NewUpstream(cfg.UpstreamURL, cfg.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		mux.Handle("/", upstream)
		log.LogInfoWithFields("bidfront", "Proxying unhandled routes", map[string]any{
			"upstream": cfg.UpstreamURL,
		})
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			jsonwriter.WriteNotFound(w, "Not found")
		})
	}

	// A nil *idp.SessionStore must not reach the gate as a non-nil interface.
	var resolver server.SessionResolver
	if sessions != nil {
		resolver = sessions
	}
	gate := server.NewAuthGate(server.GateConfig{
		Sessions: resolver,
		Admins:   adminauth.NewAllowList(cfg.AdminEmails),
	})

	return server.ChainMiddleware(mux,
		gate.Middleware(),
		server.NewDeviceMiddleware(jar),
		server.NewCORSMiddleware(cfg.AllowedOrigins),
		server.NewLoggerMiddleware("http"),
		server.NewRecoverMiddleware("http"),
	), nil
}
