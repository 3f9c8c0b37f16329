package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/example/chattify/pkg/otelhelper"
	"github.com/example/chattify/pkg/wire"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// sanitizeFilename rejects anything that could escape the media directory.
// The gateway synthesizes filenames, so a rejection here means a client is
// talking to this service directly.
func sanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty filename")
	}
	if strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return "", errors.New("filename carries a path")
	}
	if strings.HasPrefix(name, ".") {
		return "", errors.New("hidden filename")
	}
	return name, nil
}

func storeReply(msg *nats.Msg, reply wire.StoreMediaReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error("Failed to marshal store reply", "error", err)
		return
	}
	msg.Respond(data)
}

func main() {
	ctx := context.Background()

	// Initialize OpenTelemetry
	otelShutdown, err := otelhelper.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx)

	meter := otel.Meter("media-service")
	storedCounter, _ := meter.Int64Counter("media_stored_total")
	storedBytes, _ := meter.Int64Counter("media_stored_bytes_total")
	rejectedCounter, _ := meter.Int64Counter("media_rejected_total")

	natsURL := envOrDefault("NATS_URL", "nats://localhost:4222")
	natsUser := envOrDefault("NATS_USER", "media-service")
	natsPass := envOrDefault("NATS_PASS", "media-service-secret")
	mediaDir := envOrDefault("MEDIA_DIR", "/data/media")
	baseURL := strings.TrimRight(envOrDefault("MEDIA_BASE_URL", "http://localhost:8090/media"), "/")
	listenAddr := envOrDefault("LISTEN_ADDR", ":8090")

	slog.Info("Starting Media Service", "dir", mediaDir, "base_url", baseURL)

	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		slog.Error("Failed to create media directory", "dir", mediaDir, "error", err)
		os.Exit(1)
	}

	// Connect to NATS with retry
	var nc *nats.Conn
	for attempt := 1; attempt <= 30; attempt++ {
		nc, err = nats.Connect(natsURL,
			nats.UserInfo(natsUser, natsPass),
			nats.Name("media-service"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
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

	// Subscribe to store requests (queue group for horizontal scaling)
	_, err = nc.QueueSubscribe("media.store", "media-workers", func(msg *nats.Msg) {
		ctx, span := otelhelper.StartServerSpan(context.Background(), msg, "store media")
		defer span.End()

		var req wire.StoreMediaRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.WarnContext(ctx, "Malformed store request", "error", err)
			span.RecordError(err)
			storeReply(msg, wire.StoreMediaReply{Error: "Invalid media request"})
			return
		}

		filename, err := sanitizeFilename(req.Filename)
		if err != nil {
			slog.WarnContext(ctx, "Rejected media filename", "filename", req.Filename, "error", err)
			rejectedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "filename")))
			storeReply(msg, wire.StoreMediaReply{Error: "Invalid media file"})
			return
		}
		if len(req.Data) == 0 {
			rejectedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "empty")))
			storeReply(msg, wire.StoreMediaReply{Error: "Invalid media file"})
			return
		}

		span.SetAttributes(
			attribute.String("media.filename", filename),
			attribute.Int("media.bytes", len(req.Data)),
		)

		if err := os.WriteFile(filepath.Join(mediaDir, filename), req.Data, 0o644); err != nil {
			slog.ErrorContext(ctx, "Failed to write media file", "filename", filename, "error", err)
			span.RecordError(err)
			storeReply(msg, wire.StoreMediaReply{Error: "Could not store media"})
			return
		}

		storeReply(msg, wire.StoreMediaReply{URL: baseURL + "/" + filename})

		storedCounter.Add(ctx, 1)
		storedBytes.Add(ctx, int64(len(req.Data)))
		slog.InfoContext(ctx, "Stored media", "filename", filename, "bytes", len(req.Data))
	})
	if err != nil {
		slog.Error("Failed to subscribe to media.store", "error", err)
		os.Exit(1)
	}
	slog.Info("Subscribed to media.store (queue group: media-workers)")

	// Serve stored files over HTTP
	mux := http.NewServeMux()
	mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	server := &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		slog.Info("Serving media files", "addr", listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("Shutting down media service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	nc.Drain()
}
