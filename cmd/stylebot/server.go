package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/stylebot/internal/api"
	"github.com/kalambet/stylebot/internal/assistant"
	"github.com/kalambet/stylebot/internal/bot"
	"github.com/kalambet/stylebot/internal/config"
	"github.com/kalambet/stylebot/internal/gpt"
	"github.com/kalambet/stylebot/internal/logging"
	"github.com/kalambet/stylebot/internal/session"
	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/telegram"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

const shutdownTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve wardrobes and the event log over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runBot() error {
	printStep("Starting stylebot %s", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	logging.New(cfg.Log)

	if err := os.MkdirAll(cfg.Bot.TempDir, 0o755); err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer events.Close()

	store := wardrobe.NewStore(cfg.WardrobePath())
	state := session.New()

	chat := gpt.New(gpt.Options{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		Model:           cfg.OpenAI.Model,
		TranscribeModel: cfg.OpenAI.TranscribeModel,
		Temperature:     cfg.OpenAI.Temperature,
		Timeout:         cfg.OpenAI.Timeout,
	})
	gateway := assistant.NewGateway(chat, store, state, events, assistant.Options{
		SystemPrompt: cfg.OpenAI.SystemPrompt,
		MaxHistory:   cfg.OpenAI.MaxHistory,
	})

	tg := telegram.NewClientWithBaseURL(cfg.Telegram.Token, cfg.Telegram.BaseURL, cfg.Telegram.PollTimeout)
	handler := bot.NewHandler(bot.Deps{
		Messenger:   tg,
		Assistant:   gateway,
		Wardrobe:    store,
		Journal:     events,
		State:       state,
		AdminUserID: cfg.Bot.AdminUserID,
		TempDir:     cfg.Bot.TempDir,
	})
	poller := bot.NewPoller(tg, handler, events, cfg.Telegram.PollTimeout, cfg.Telegram.PollDelay)

	if err := events.AppendEvent(storage.Event{
		UserID:   storage.SystemUserID,
		Username: storage.SystemUsername,
		Kind:     storage.KindInfo,
		Text:     "bot started, version " + version,
	}); err != nil {
		slog.Warn("journal write failed", "error", err)
	}
	slog.Info("bot starting", "model", chat.Model(), "wardrobe", store.Path(), "admin_api", cfg.Server.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})

	if cfg.Server.Enabled {
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		srv := &http.Server{
			Addr: addr,
			Handler: api.NewAppHandler(api.AppDeps{
				Wardrobe: store,
				Events:   events,
				Token:    cfg.Server.Token,
			}),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return gctx
			},
		}
		g.Go(func() error {
			slog.Info("admin API listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	slog.Info("bot stopped")
	return err
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol, so logs must stay on stderr.
	logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer events.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Wardrobe: wardrobe.NewStore(cfg.WardrobePath()),
		Events:   events,
		Version:  version,
	})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
