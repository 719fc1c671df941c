package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/brokechef/fridgechef/internal/config"
	"github.com/brokechef/fridgechef/internal/db"
	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/events"
	"github.com/brokechef/fridgechef/internal/fridge"
	"github.com/brokechef/fridgechef/internal/generator"
	"github.com/brokechef/fridgechef/internal/imagesource"
	"github.com/brokechef/fridgechef/internal/imagestore/local"
	"github.com/brokechef/fridgechef/internal/logging"
	"github.com/brokechef/fridgechef/internal/recipes"
	"github.com/brokechef/fridgechef/internal/service"
	"github.com/brokechef/fridgechef/internal/store"
	"github.com/brokechef/fridgechef/internal/vision"
	claudevision "github.com/brokechef/fridgechef/internal/vision/claude"
	ollamavision "github.com/brokechef/fridgechef/internal/vision/ollama"
	"github.com/brokechef/fridgechef/internal/web"
)

var errNotSignedIn = errors.New("not signed in; run `fridgechef login <token>` first")

// app holds the resources shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	closers []func()
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	})

	a.cfg, a.logger, a.db = cfg, logger, database
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newCLI(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "fridgechef",
		Short:        "Generate recipes from a photo of your fridge",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
	}
	cobra.EnableCommandSorting = false

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newGenerateCmd(a),
		newServeCmd(a),
	)
	return root
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store the session token used for requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return errors.New("token must not be empty")
			}
			if err := store.NewTokenStore(a.db).Save(cmd.Context(), token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed in.")
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := store.NewTokenStore(a.db).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newGenerateCmd(a *app) *cobra.Command {
	var create int
	cmd := &cobra.Command{
		Use:   "generate <image>",
		Short: "Generate recipes from a fridge photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), a, imagesource.File(args[0]), create, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVar(&create, "create", 0, "save candidate `N` (1-based) as a recipe")
	return cmd
}

func runGenerate(ctx context.Context, a *app, src imagesource.Provider, create int, out, status io.Writer) error {
	tokens := store.NewTokenStore(a.db)
	token, err := tokens.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return errNotSignedIn
	}

	gen := generator.NewClient(a.cfg.BaseURL, tokens, generator.Timeouts{
		Upload:  a.cfg.UploadTimeout,
		Connect: a.cfg.ConnectTimeout,
		Read:    a.cfg.ReadTimeout,
	}, a.logger)
	recipeClient := recipes.NewClient(a.cfg.UploadURL, a.cfg.CrudURL, tokens, a.cfg.UploadTimeout, a.logger)

	var mu sync.Mutex
	notifier := fridge.NotifierFunc(func(kind fridge.ToastKind, msg string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(status, "[%s] %s\n", kind, msg)
	})
	c := fridge.NewCoordinator(gen, recipeClient, a.logger, fridge.WithNotifier(notifier))
	defer c.Close()
	sub := c.Subscribe()

	if _, err := c.StartFromProvider(ctx, src); err != nil {
		return err
	}
	state, err := awaitTerminal(ctx, sub)
	if err != nil {
		return err
	}
	if state.Phase == fridge.PhaseError {
		return errors.New(state.Message)
	}
	printRecipes(out, state.Recipes)

	if create == 0 {
		return nil
	}
	if create < 0 || create > len(state.Recipes) {
		return fmt.Errorf("--create must be between 1 and %d", len(state.Recipes))
	}
	id, err := c.CreateFromCandidate(ctx, state.Recipes[create-1])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved recipe %d.\n", id)
	return nil
}

// awaitTerminal returns the first terminal state published on sub.
func awaitTerminal(ctx context.Context, sub <-chan fridge.State) (fridge.State, error) {
	for {
		select {
		case <-ctx.Done():
			return fridge.State{}, ctx.Err()
		case s, ok := <-sub:
			if !ok {
				return fridge.State{}, fridge.ErrClosed
			}
			if s.Terminal() {
				return s, nil
			}
		}
	}
}

func printRecipes(w io.Writer, list []domain.GeneratedRecipe) {
	for i, r := range list {
		fmt.Fprintf(w, "%d. %s (%d min)\n", i+1, r.Title, r.Duration)
		if len(r.Ingredients) > 0 {
			fmt.Fprintf(w, "   Ingredients: %s\n", strings.Join(r.Ingredients, ", "))
		}
		if len(r.Tools) > 0 {
			fmt.Fprintf(w, "   Tools: %s\n", strings.Join(r.Tools, ", "))
		}
		for j, step := range r.Steps {
			fmt.Fprintf(w, "   %d) %s\n", j+1, step)
		}
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Run the development recipe backend",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	visionAPI, err := newVisionGenerator(a.cfg, a.logger)
	if err != nil {
		return err
	}
	images, err := local.New(a.cfg.PhotoPath, a.logger)
	if err != nil {
		return err
	}
	hub, err := newHub(ctx, a)
	if err != nil {
		return err
	}

	svc := service.NewKitchenService(
		store.NewRecipeStore(a.db),
		store.NewGenerationStore(a.db),
		visionAPI,
		images,
		hub,
		a.cfg.GenerateTimeout,
		a.logger,
	)
	return web.NewServer(svc, a.logger).Run(ctx, a.cfg.ListenAddr)
}

func newVisionGenerator(cfg *config.Config, logger *slog.Logger) (vision.RecipeGenerator, error) {
	switch cfg.VisionBackend {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			return nil, errors.New("CLAUDE_API_KEY is required when VISION_BACKEND=claude")
		}
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewGenerator(cfg.ClaudeAPIKey, cfg.ClaudeModel, logger), nil
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewGenerator(cfg.OllamaHost, cfg.OllamaModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown VISION_BACKEND %q", cfg.VisionBackend)
	}
}

// newHub builds the configured event hub. A redis client is registered for
// closing with the app.
func newHub(ctx context.Context, a *app) (events.Hub, error) {
	switch a.cfg.EventsBackend {
	case "memory":
		return events.NewMemoryHub(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Error("failed to close redis client", "error", err)
			}
		})
		a.logger.Info("using redis event hub", "addr", a.cfg.RedisAddr)
		return events.NewRedisHub(client, a.cfg.EventsTTL), nil
	default:
		return nil, fmt.Errorf("unknown EVENTS_BACKEND %q", a.cfg.EventsBackend)
	}
}
