package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Handler serves GET /status as JSON and /ws as a websocket stream of status
// updates.
func Handler(h *Hub, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Current())
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(w, r, h, logger)
	})
	return mux
}

func serveWS(w http.ResponseWriter, r *http.Request, h *Hub, logger *slog.Logger) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Warn("ws accept failed", slog.Any("err", err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	updates, cancel := h.Subscribe()
	defer cancel()

	// clients only listen; CloseRead handles pings and close frames
	ctx := conn.CloseRead(r.Context())
	if err := wsjson.Write(ctx, conn, h.Current()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			if err := wsjson.Write(ctx, conn, s); err != nil {
				logger.Debug("ws write failed", slog.Any("err", err))
				return
			}
		}
	}
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h *Hub, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, h, logger)
}

func ServeListener(ctx context.Context, ln net.Listener, h *Hub, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           Handler(h, logger),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if logger != nil {
		logger.Info("status server listening", slog.String("addr", ln.Addr().String()))
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
