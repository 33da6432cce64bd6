// Command tessel runs the agent core: a one-shot turn for a single
// inbound message, a long-running serve loop driving the autonomous
// scheduler, and configuration validation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/agent/routing"
	"github.com/tessel-ai/tessel/internal/autopilot"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/memory"
	"github.com/tessel-ai/tessel/internal/plan"
	"github.com/tessel-ai/tessel/internal/session"
	"github.com/tessel-ai/tessel/internal/skills"
	"github.com/tessel-ai/tessel/internal/storage"
	"github.com/tessel-ai/tessel/internal/tools/contrib"
	"github.com/tessel-ai/tessel/pkg/models"
)

// Exit codes surfaced to the shell.
const (
	exitOK         = 0
	exitConfig     = 2
	exitValidation = 65
	exitProvider   = 69
	exitRateLimit  = 75
	exitTimeout    = 124
)

func main() {
	var cfgPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "tessel",
		Short:         "Conversational agent execution core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "tessel.yaml", "path to the settings file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newServeCmd(&cfgPath, &verbose))
	root.AddCommand(newTurnCmd(&cfgPath, &verbose))
	root.AddCommand(newConfigCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitError carries an explicit shell exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return classify(err)
}

// classify maps turn errors to exit codes by their cause.
func classify(err error) int {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return exitRateLimit
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "deadline"):
		return exitTimeout
	case strings.Contains(msg, "api key") || strings.Contains(msg, "resolve tier") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return exitProvider
	default:
		return 1
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(*cfgPath); err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})
	return cmd
}

func newTurnCmd(cfgPath *string, verbose *bool) *cobra.Command {
	var channel, chat, tier string
	cmd := &cobra.Command{
		Use:   "turn [message]",
		Short: "Run one turn for a single inbound message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return &exitError{code: exitValidation, err: errors.New("message text is required")}
			}

			app, err := buildApp(*cfgPath, newLogger(*verbose))
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.runTurn(cmd.Context(), channel, chat, text, tier)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.FinalText)
			if result.Termination == models.TerminatedDeadline {
				return &exitError{code: exitTimeout, err: errors.New("turn hit the deadline")}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "cli", "channel type of the session")
	cmd.Flags().StringVar(&chat, "chat", "default", "chat id of the session")
	cmd.Flags().StringVar(&tier, "tier", "", "model tier override")
	return cmd
}

func newServeCmd(cfgPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and hot-reload loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*verbose)
			app, err := buildApp(*cfgPath, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				if err := app.manager.Watch(ctx); err != nil {
					logger.Warn("config watch stopped", "error", err)
				}
			}()
			go func() {
				defer wg.Done()
				app.scheduler.Run(ctx)
			}()

			logger.Info("serving", "config", *cfgPath)
			<-ctx.Done()
			wg.Wait()
			return nil
		},
	}
}

// app is the wired process: config, stores, engine, scheduler.
type app struct {
	manager   *config.Manager
	engine    *agent.Engine
	sessions  *session.Store
	scheduler *autopilot.Scheduler
	logger    *slog.Logger

	closers []func() error
}

func buildApp(cfgPath string, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no settings file, using defaults", "path", cfgPath)
			cfg = config.Default()
		} else {
			return nil, &exitError{code: exitConfig, err: err}
		}
	}
	manager := config.NewManager(cfg, cfgPath, logger)

	a := &app{manager: manager, sessions: session.NewStore(), logger: logger}

	store, err := storage.NewLocal(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("open storage root: %w", err)
	}
	skillManager := skills.NewManager(store)
	if err := skillManager.Refresh(context.Background()); err != nil {
		logger.Warn("skill refresh failed", "error", err)
	}
	planService := plan.NewService(store)

	deps := contrib.Deps{Skills: skillManager, Plans: planService}

	if cfg.Memory.Enabled {
		memStore, err := memory.OpenStore(cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		a.closers = append(a.closers, memStore.Close)
		deps.Memory = memory.NewEngine(memStore, newEmbedder(cfg), cfg.Memory,
			memory.WithLogger(logger))
	}

	goalStore, err := autopilot.OpenStore(filepath.Join(cfg.Storage.Root, "goals.db"))
	if err != nil {
		return nil, fmt.Errorf("open goal store: %w", err)
	}
	a.closers = append(a.closers, goalStore.Close)
	deps.GoalStore = goalStore

	registry := agent.NewRegistry()
	contrib.Register(registry, deps)

	router := newReloadableRouter(cfg)
	manager.OnReload(router.replace)

	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithSkills(skillManager),
		agent.WithPlans(planService),
	}
	if deps.Memory != nil {
		opts = append(opts, agent.WithRecaller(deps.Memory), agent.WithJournal(deps.Memory))
	}
	a.engine = agent.NewEngine(registry, router, opts...)

	runner := autopilot.NewEngineRunner(a.engine, a.sessions, manager, cfg.Auto)
	a.scheduler = autopilot.NewScheduler(goalStore, runner, cfg.Auto,
		autopilot.WithLogger(logger))
	return a, nil
}

func newEmbedder(cfg *config.Config) memory.Embedder {
	emb := cfg.Memory.Embeddings
	if emb.APIKey != "" {
		return memory.NewOpenAIEmbedder(emb.APIKey, emb.BaseURL, emb.Model)
	}
	return &memory.HashEmbedder{}
}

func (a *app) runTurn(ctx context.Context, channel, chat, text, tier string) (*models.TurnResult, error) {
	unlock := a.sessions.LockTurn(channel, chat)
	defer unlock()

	sess := a.sessions.GetOrCreate(channel, chat)
	snap := a.manager.Snapshot()
	prefs := models.Preferences{ModelTier: tier}
	tc := agent.NewContext(sess, prefs, snap, time.Now())

	return a.engine.RunTurn(ctx, tc, models.Inbound{
		ChannelType: channel,
		ChatID:      chat,
		Text:        text,
	})
}

func (a *app) Close() {
	for _, close := range a.closers {
		if err := close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// reloadableRouter swaps the routing tables on config reload while the
// engine keeps one stable Router value.
type reloadableRouter struct {
	mu     sync.RWMutex
	router *routing.Router
}

func newReloadableRouter(cfg *config.Config) *reloadableRouter {
	return &reloadableRouter{router: routing.New(cfg.Router, cfg.Providers)}
}

func (r *reloadableRouter) replace(cfg *config.Config) {
	r.mu.Lock()
	r.router = routing.New(cfg.Router, cfg.Providers)
	r.mu.Unlock()
}

func (r *reloadableRouter) EffectiveTier(prefs models.Preferences, contextTier string, codeActivity bool) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.router.EffectiveTier(prefs, contextTier, codeActivity)
}

func (r *reloadableRouter) Resolve(tier string) (*routing.Resolution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.router.Resolve(tier)
}
