// enrollstub is a development stand-in for the enrollment backend. It
// implements the collaborator endpoints the wizard talks to (temp uploads,
// record submission, catalog, discard) against in-memory state, plus an
// antiforgery token endpoint and a websocket feed of upload activity.
package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/fitdesk/enrollkit/internal/logging"
)

func main() {
	cfg := loadConfig()

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(logging.NewCorrelationHandler(inner))
	slog.SetDefault(logger)

	state := newStubState()
	seedCatalog(state)
	hub := newEventHub(logger)

	srv := &stubServer{
		cfg:    cfg,
		state:  state,
		hub:    hub,
		logger: logger,
	}

	logger.Info("enrollstub listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.routes()); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
