package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/example/chattify/pkg/otelhelper"
)

// Gateway accepts WebSocket connections and hands each one to a Session.
type Gateway struct {
	auth *Authenticator
	deps Deps
	log  *slog.Logger

	active          atomic.Int64
	sessionCounter  metric.Int64Counter
	rejectedCounter metric.Int64Counter
}

// handleChat upgrades the connection and runs the session to completion.
// The path carries the acting identity and, optionally, a target user whose
// conversation is auto-joined.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	target := r.PathValue("target")

	// Authenticate off the raw handshake before accepting.
	identity, ok := g.auth.Identify(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.log.Error("websocket accept failed", "error", err)
		return
	}

	// The path identity must match the credential; anything else is an
	// authentication failure with its own close code so the client can
	// route to re-login rather than retry.
	if !ok || identity != username {
		g.rejectedCounter.Add(r.Context(), 1, metric.WithAttributes(
			attribute.Bool("credential_present", ok),
		))
		g.log.Warn("rejecting unauthenticated connection", "path_user", username, "remote", r.RemoteAddr)
		conn.Close(StatusAuthFailure, "authentication failed")
		return
	}

	g.sessionCounter.Add(r.Context(), 1)
	g.active.Add(1)
	defer g.active.Add(-1)

	sess := NewSession(identity, target, newWSTransport(conn), g.deps, g.log)
	sess.Run(r.Context())
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx := context.Background()

	otelShutdown, err := otelhelper.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx)

	meter := otel.Meter("chat-gateway")
	sessionCounter, _ := meter.Int64Counter("gateway_sessions_total",
		metric.WithDescription("Total sessions accepted"))
	rejectedCounter, _ := meter.Int64Counter("gateway_rejections_total",
		metric.WithDescription("Total connections rejected at authentication"))
	activeGauge, _ := meter.Int64ObservableGauge("gateway_active_sessions",
		metric.WithDescription("Currently active sessions"))

	natsURL := envOrDefault("NATS_URL", "nats://localhost:4222")
	natsUser := envOrDefault("NATS_USER", "chat-gateway")
	natsPass := envOrDefault("NATS_PASS", "chat-gateway-secret")
	listenAddr := envOrDefault("LISTEN_ADDR", ":8080")
	jwksURL := envOrDefault("JWKS_URL", "http://localhost:8180/realms/chattify/protocol/openid-connect/certs")
	jwtIssuer := envOrDefault("JWT_ISSUER", "http://localhost:8180/realms/chattify")

	slog.Info("Starting Chat Gateway", "nats_url", natsURL, "listen_addr", listenAddr)

	// Connect to NATS with retry
	var nc *nats.Conn
	for attempt := 1; attempt <= 30; attempt++ {
		nc, err = nats.Connect(natsURL,
			nats.UserInfo(natsUser, natsPass),
			nats.Name("chat-gateway"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err == nil {
			break
		}
		slog.Info("Waiting for NATS", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	slog.Info("Connected to NATS", "url", nc.ConnectedUrl())

	js, err := nc.JetStream()
	if err != nil {
		slog.Error("Failed to create JetStream context", "error", err)
		os.Exit(1)
	}

	presence, err := newKVPresence(js)
	if err != nil {
		slog.Error("Failed to bind presence bucket", "error", err)
		os.Exit(1)
	}
	slog.Info("NATS KV bucket ready", "bucket", presenceBucket)

	validator, err := NewJWKSValidator(jwksURL, jwtIssuer)
	if err != nil {
		slog.Error("Failed to initialize token validator", "error", err)
		os.Exit(1)
	}
	defer validator.Close()

	log := slog.Default()
	callTimeout := 5 * time.Second

	// One breaker per backing service; sessions share them so a dead
	// service trips once for everyone.
	messageBreaker := NewCircuitBreaker(5, 15)
	friendBreaker := NewCircuitBreaker(5, 15)
	mediaBreaker := NewCircuitBreaker(5, 15)

	gw := &Gateway{
		auth: NewAuthenticator(validator, log),
		deps: Deps{
			Presence: presence,
			Fabric:   newNATSFabric(nc, log),
			Messages: &natsMessageStore{nc: nc, timeout: callTimeout, breaker: messageBreaker},
			Friends:  &natsFriendDirectory{nc: nc, timeout: callTimeout, breaker: friendBreaker},
			Media:    &natsMediaStore{nc: nc, timeout: callTimeout, breaker: mediaBreaker},
			Receipts: &natsReceipts{nc: nc},
			Timeout:  callTimeout,
		},
		log:             log,
		sessionCounter:  sessionCounter,
		rejectedCounter: rejectedCounter,
	}

	_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(activeGauge, gw.active.Load())
		return nil
	}, activeGauge)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{username}", gw.handleChat)
	mux.HandleFunc("GET /ws/chat/{username}/{target}", gw.handleChat)

	server := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		slog.Info("Gateway listening", "addr", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
		}
	}()

	// Wait for shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("Shutting down chat gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	nc.Drain()
	slog.Info("Chat gateway shutdown complete")
}
