package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/lectern/internal/api"
	"github.com/kalambet/lectern/internal/audiocache"
	"github.com/kalambet/lectern/internal/config"
	"github.com/kalambet/lectern/internal/lectures"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/playback"
	"github.com/kalambet/lectern/internal/registry"
	"github.com/kalambet/lectern/internal/session"
	"github.com/kalambet/lectern/internal/state"
	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/taxonomy"
	"github.com/kalambet/lectern/internal/tutor"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the lectern daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running lectern daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lectern system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "lectern.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "lectern version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Check if a daemon is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("lectern is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("lectern is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	tax, err := taxonomy.Load()
	if err != nil {
		return fmt.Errorf("loading taxonomy: %w", err)
	}

	// Assemble the domain components.
	tutorClient := tutor.New(cfg.Tutor.BaseURL, cfg.Tutor.RequestTimeout)
	states := state.NewManager(store, tax)
	reg := registry.New(store)
	catalog := lectures.NewCatalog(store, states)
	generator := pipeline.NewGenerator(reg, states, store, tutorClient)

	playerCmd := cfg.Playback.Command
	if playerCmd == "" {
		playerCmd = playback.DefaultCommand()
	}
	arbiter := playback.NewArbiter(playback.NewExecPlayer(playerCmd))
	sessions := session.NewManager(catalog, tutorClient, arbiter)

	handler := api.NewHandler(api.Deps{
		State:     states,
		Taxonomy:  tax,
		Registry:  reg,
		Generator: generator,
		Catalog:   catalog,
		Sessions:  sessions,
		Playback:  arbiter,
		Tutor:     tutorClient,
		Token:     apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	audioDir := filepath.Join(cfg.Storage.DataDir, "audio")
	worker := audiocache.NewWorker(store, tutorClient, audioDir, 500*time.Millisecond)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Catalog:   catalog,
		Generator: generator,
		Sessions:  sessions,
		State:     states,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "lectern listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		arbiter.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	slog.Info("MCP server started (stdio transport)")

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("lectern is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop lectern (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to lectern (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check daemon health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the remote tutor service.
	tutorResp, err := client.Get(cfg.Tutor.BaseURL + "/")
	if err != nil {
		printStatus("Tutor service", "not reachable at %s", cfg.Tutor.BaseURL)
	} else {
		tutorResp.Body.Close()
		printStatus("Tutor service", "reachable at %s", cfg.Tutor.BaseURL)
	}

	if running {
		if cli, err := newAPIClient(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if onbResp, err := cli.get(ctx, "/onboarding"); err == nil {
				var onb struct {
					HasOnboarded bool   `json:"has_onboarded"`
					Industry     string `json:"industry"`
					Role         string `json:"role"`
				}
				if decodeJSON(onbResp, &onb) == nil {
					if onb.HasOnboarded {
						printStatus("Context", "%s / %s", onb.Industry, onb.Role)
					} else {
						printStatus("Context", "not onboarded")
					}
				}
			}
			if docsResp, err := cli.get(ctx, "/documents"); err == nil {
				var docs []struct {
					Selected bool `json:"selected"`
				}
				if decodeJSON(docsResp, &docs) == nil {
					selected := "none selected"
					for _, d := range docs {
						if d.Selected {
							selected = "one selected"
						}
					}
					printStatus("Documents", "%d (%s)", len(docs), selected)
				}
			}
			if lecResp, err := cli.get(ctx, "/lectures"); err == nil {
				var list []struct{}
				if decodeJSON(lecResp, &list) == nil {
					printStatus("Lectures", "%d in current context", len(list))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
