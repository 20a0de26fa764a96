package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/friendscout/internal/chat"
	"github.com/TobiSchelling/friendscout/internal/config"
	"github.com/TobiSchelling/friendscout/internal/database"
	"github.com/TobiSchelling/friendscout/internal/display"
	"github.com/TobiSchelling/friendscout/internal/llm"
	"github.com/TobiSchelling/friendscout/internal/logging"
	"github.com/TobiSchelling/friendscout/internal/pipeline"
	"github.com/TobiSchelling/friendscout/internal/server"
	"github.com/TobiSchelling/friendscout/internal/session"
	"github.com/TobiSchelling/friendscout/internal/social"
	"github.com/TobiSchelling/friendscout/internal/telegram"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	localUser  string
	cfg        *config.Config
	logger     = zap.NewNop()
	out        = display.NewPrinter(os.Stdout, os.Stderr, "", 80)
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "friendscout",
	Short:   "Find new friends on Bluesky and Reddit",
	Long:    "friendscout reads your Bluesky and Reddit networks, summarizes your interests with a language model, and suggests people to connect with.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, verbose, true)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&localUser, "user", "u", os.Getenv("FRIENDSCOUT_USER"), "Local account name (default $FRIENDSCOUT_USER)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(followingCmd)
	rootCmd.AddCommand(communitiesCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(telegramCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("friendscout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/friendscout/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set GEMINI_API_KEY and the Reddit app credentials in your environment or a .env file.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		out.Title("Storage")
		out.Info("  Local accounts: %d", stats.Users)
		out.Info("  Platform credentials: %d", stats.Credentials)
		out.Info("  Stored records: %d", stats.Artifacts)
		if stats.LastUpdate != "" {
			out.Info("  Last update: %s", stats.LastUpdate)
		}

		out.Title("Language model")
		if provider := llm.CreateProvider(ctx, cfg.Model, logger); provider != nil {
			out.Success("%s (%s) available", cfg.Model.Provider, cfg.Model.Model)
		} else {
			out.Warning("No provider available; analysis will use fallback text")
		}

		if localUser == "" {
			return nil
		}
		out.Title("Credentials for %s", localUser)
		for _, p := range social.Platforms {
			creds, err := store.GetCredentials(ctx, localUser, p)
			switch {
			case err != nil:
				out.Error("%s: %v", p.Title(), err)
			case creds == nil:
				out.Muted("  %s: not set", p.Title())
			default:
				out.Info("  %s: %s", p.Title(), creds.Username)
			}
		}
		return nil
	},
}

// --- register / credentials ---

var passwordFlag string

var registerCmd = &cobra.Command{
	Use:   "register [username]",
	Short: "Create a local account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		password, err := readSecret(cmd.InOrStdin(), passwordFlag, "Password: ")
		if err != nil {
			return err
		}
		if err := store.RegisterUser(ctx, args[0], password); err != nil {
			return err
		}
		out.Success("Registered %s", args[0])
		return nil
	},
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage stored platform credentials",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set [bluesky|reddit] [username]",
	Short: "Store the login for one platform",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		platform, err := social.ParsePlatform(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		password, err := readSecret(cmd.InOrStdin(), passwordFlag, platform.Title()+" password: ")
		if err != nil {
			return err
		}
		creds := social.Credentials{Username: args[1], Password: password}
		if err := store.PutCredentials(ctx, localUser, platform, creds); err != nil {
			return err
		}
		out.Success("%s credentials saved for %s", platform.Title(), localUser)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVarP(&passwordFlag, "password", "p", "", "Password (read from stdin when omitted)")
	credentialsSetCmd.Flags().StringVarP(&passwordFlag, "password", "p", "", "Password (read from stdin when omitted)")
	credentialsCmd.AddCommand(credentialsSetCmd)
}

// --- fetch / analyze ---

var dryRun bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch following lists, subscriptions and candidate connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, s *social.SessionContext) error {
			var result *pipeline.Result
			if dryRun {
				result = pipe.DryRun(ctx, s)
			} else {
				result = pipe.Fetch(ctx, s)
			}
			printSteps(result)
			return nil
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize interests and generate suggestions from fetched data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, s *social.SessionContext) error {
			printSteps(pipe.Analyze(ctx, s))
			if last, ok := s.Transcript.Last(); ok {
				fmt.Println()
				out.Markdown(last.Text)
			}
			return nil
		})
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

func printSteps(result *pipeline.Result) {
	for i, step := range result.Steps {
		out.Title("Step %d/%d: %s", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			out.Error("%v", step.Err)
		} else {
			out.Info("  %s", step.Summary)
		}
	}
	if banner := result.Banner(); banner != "" {
		fmt.Println()
		out.Warning("%s", banner)
	}
}

// --- read-only views ---

var followingCmd = &cobra.Command{
	Use:   "following [bluesky|reddit]",
	Short: "List followed accounts from the last fetch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(_ context.Context, _ *pipeline.Pipeline, s *social.SessionContext) error {
			accounts := social.Flatten(s.Following)
			if len(args) == 1 {
				p, err := social.ParsePlatform(args[0])
				if err != nil {
					return err
				}
				accounts = s.Following[p]
			}
			if len(accounts) == 0 {
				out.Muted("Nothing fetched yet. Run 'friendscout fetch' first.")
				return nil
			}
			out.Accounts(accounts)
			return nil
		})
	},
}

var communitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "List subscribed Reddit communities from the last fetch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(_ context.Context, _ *pipeline.Pipeline, s *social.SessionContext) error {
			if len(s.Communities) == 0 {
				out.Muted("No subscriptions fetched yet. Run 'friendscout fetch' first.")
				return nil
			}
			out.Communities(s.Communities)
			return nil
		})
	},
}

var showCandidates bool

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Show interests and suggested connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(_ context.Context, _ *pipeline.Pipeline, s *social.SessionContext) error {
			if !s.Analyzed {
				out.Muted("No analysis yet. Run 'friendscout analyze' first.")
				return nil
			}
			for _, p := range social.Platforms {
				rec, ok := s.Recommendations[p]
				if !ok {
					continue
				}
				out.Title("%s", p.Title())
				out.Markdown("### Interests\n\n" + string(s.Interests[p]))
				out.Markdown("### Suggested connections\n\n" + string(rec))
				if showCandidates {
					out.Candidates(s.Candidates[p])
				}
			}
			return nil
		})
	},
}

func init() {
	recommendCmd.Flags().BoolVar(&showCandidates, "candidates", false, "Also list the candidate pool")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask for friend suggestions interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, _ *pipeline.Pipeline, s *social.SessionContext) error {
			router := chat.NewRouter(llm.CreateProvider(ctx, cfg.Model, logger), logger)
			out.Markdown(chat.Greeting(s))
			out.Muted("Type 'exit' to quit.")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "exit" || line == "quit" {
					return nil
				}
				if reply := router.HandleQuery(ctx, line, s); reply != "" {
					out.Markdown(reply)
				}
			}
		})
	},
}

// --- serve / telegram ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web app",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := session.New(cfg.Session, logger)
		if err != nil {
			return err
		}
		defer sessions.Close()

		provider := llm.CreateProvider(ctx, cfg.Model, logger)
		pipe := pipeline.New(cfg, store, provider, pipeline.NewConnectors(cfg, logger), logger)
		srv, err := server.New(store, sessions, pipe, chat.NewRouter(provider, logger), logger)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}
		out.Info("Starting server at http://localhost:%d", port)
		out.Muted("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Answer chat messages through a Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := telegram.ParseChatID(config.Env(cfg.Telegram.ChatIDEnv))
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.Telegram.ChatIDEnv, err)
		}
		api, err := telegram.Dial(config.Env(cfg.Telegram.TokenEnv))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withPipeline(ctx, func(ctx context.Context, _ *pipeline.Pipeline, s *social.SessionContext) error {
			bot := telegram.New(api, chatID, chat.NewRouter(llm.CreateProvider(ctx, cfg.Model, logger), logger), s, logger)

			u := tgbotapi.NewUpdate(0)
			u.Timeout = 30
			updates := api.GetUpdatesChan(u)
			defer api.StopReceivingUpdates()

			out.Info("Bot @%s listening for chat %d", api.Self.UserName, chatID)
			return bot.Run(ctx, updates)
		})
	},
}

// --- helpers ---

func openStore(ctx context.Context) (database.Store, error) {
	return database.OpenStore(ctx, cfg, logger)
}

func requireUser() error {
	if localUser == "" {
		return errors.New("no local account selected; pass --user or set FRIENDSCOUT_USER")
	}
	return nil
}

// withPipeline opens the store, hydrates the user's context and runs fn.
func withPipeline(ctx context.Context, fn func(context.Context, *pipeline.Pipeline, *social.SessionContext) error) error {
	if err := requireUser(); err != nil {
		return err
	}
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	pipe := pipeline.New(cfg, store, llm.CreateProvider(ctx, cfg.Model, logger), pipeline.NewConnectors(cfg, logger), logger)
	s := social.NewSessionContext("cli", localUser)
	if err := pipe.Load(ctx, s); err != nil {
		out.Warning("Some stored data could not be read: %v", err)
	}
	return fn(ctx, pipe, s)
}

// readSecret returns flagValue, or reads one line from in after printing prompt.
func readSecret(in io.Reader, flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
