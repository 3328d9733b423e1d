package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/wrenlabs/concierge/backend/internal/config"
	"github.com/wrenlabs/concierge/backend/internal/handler"
	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/service/booking"
	"github.com/wrenlabs/concierge/backend/internal/service/education"
	"github.com/wrenlabs/concierge/backend/internal/service/intent"
	"github.com/wrenlabs/concierge/backend/internal/service/orchestrator"
	"github.com/wrenlabs/concierge/backend/internal/service/properties"
	"github.com/wrenlabs/concierge/backend/internal/service/reply"
	"github.com/wrenlabs/concierge/backend/internal/service/session"
	logx "github.com/wrenlabs/concierge/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logx.Init(cfg.Log)

	st, err := cfg.Memory.NewStore()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}
	log.Info().Str("backend", cfg.Memory.Backend).Msg("session store ready")

	sessions := session.NewManager(st, cfg.Memory.SessionTTL)

	var chatModel model.BaseChatModel
	if cfg.LLM.Enabled() {
		chatModel, err = cfg.LLM.NewChatModel(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("chat model unavailable, continuing with templated replies")
			chatModel = nil
		} else {
			log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("chat model ready")
		}
	} else {
		log.Info().Msg("llm credentials not configured, continuing with templated replies")
	}

	replier, err := reply.New(ctx, chatModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build reply chain")
	}

	registry, err := capability.NewRegistry(
		booking.New(replier, booking.NewCatalog(booking.Seed())),
		properties.New(replier),
		education.New(replier),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid handler registry")
	}

	classifier, err := intent.NewClassifier(ctx, chatModel, registry.Descriptors(), intent.Config{
		Enabled:             cfg.Routing.ClassifierEnabled,
		ConfidenceThreshold: cfg.Routing.ConfidenceThreshold,
		HistoryLimit:        cfg.Routing.HistoryLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build intent classifier")
	}
	if !classifier.Enabled() {
		log.Info().Msg("intent classifier disabled, routing by stickiness only")
	}

	orch := orchestrator.New(sessions, classifier, registry, cfg.Routing.HistoryLimit)

	router := handler.NewRouter(orch, st)
	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("concierge backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
