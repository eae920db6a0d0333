package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/havenapp/haven/pkg/agent"
	"github.com/havenapp/haven/pkg/bus"
	"github.com/havenapp/haven/pkg/config"
	"github.com/havenapp/haven/pkg/logger"
	"github.com/havenapp/haven/pkg/providers"
	"github.com/havenapp/haven/pkg/reminders"
	"github.com/havenapp/haven/pkg/safety"
	"github.com/havenapp/haven/pkg/session"
	"github.com/havenapp/haven/pkg/storage"
	"github.com/havenapp/haven/pkg/tools"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

const appName = "haven"

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "haven",
		Short: "Recovery support companion with a safety-gated agent core",
		Long: strings.TrimSpace(`haven is a conversational support companion.

Every message passes a deterministic safety gate before dispatch, context is
assembled from facts, recent conversation, memories, and habit metrics, and a
bounded tool-calling loop drives the inference provider.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newInitCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newSendCommand())
	root.AddCommand(newSessionsCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func printVersion() {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	fmt.Printf("%s %s\n", appName, v)
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	fmt.Printf("  Go: %s\n", runtime.Version())
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".haven", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(getConfigPath())
}

// app is the wired dispatch core shared by the chat, send, and serve
// commands.
type app struct {
	cfg        *config.Config
	store      *storage.SQLiteStore
	sessions   *session.Manager
	dispatcher *agent.Dispatcher
	bus        *bus.MessageBus
}

func newApp(cfg *config.Config) (*app, error) {
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStore(cfg.StoragePath())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := tools.NewToolRegistry()
	registry.Register(tools.NewLogMoodTool(store, store))
	registry.Register(tools.NewLogJournalTool(store))
	registry.Register(tools.NewHabitSummaryTool(store, cfg.Context.MetricsWindow))
	registry.Register(tools.NewSaveMemoryTool(store))
	registry.Register(tools.NewSearchMemoriesTool(store))
	registry.Register(tools.NewShowResourcesTool(cfg.Safety.EmergencyContact))

	gate := safety.NewGate(safety.Options{
		VelocityThreshold:  cfg.Safety.VelocityThreshold,
		LateNightStartHour: cfg.Safety.LateNightStartHour,
		LateNightEndHour:   cfg.Safety.LateNightEndHour,
	})

	contextBuilder := agent.NewContextBuilder(cfg.Context, store, store, store)
	contextBuilder.SetToolsRegistry(registry)
	if cfg.Agent.SystemPrompt != "" {
		contextBuilder.SetSystemPrompt(cfg.Agent.SystemPrompt)
	}

	runner := agent.NewLoopRunner(provider, registry, agent.LoopRunnerOptions{
		Model:       cfg.Agent.Model,
		MaxRounds:   cfg.Agent.MaxRounds,
		MaxTokens:   cfg.Agent.MaxTokens,
		Temperature: cfg.Agent.Temperature,
		RetryMax:    cfg.Agent.RetryMax,
		RetryBase:   time.Duration(cfg.Agent.RetryBaseMS) * time.Millisecond,
	})

	sessions := session.NewManager(store)
	msgBus := bus.NewMessageBus()
	dispatcher := agent.NewDispatcher(sessions, gate, contextBuilder, runner, msgBus, cfg.Safety.EmergencyContact)

	return &app{
		cfg:        cfg,
		store:      store,
		sessions:   sessions,
		dispatcher: dispatcher,
		bus:        msgBus,
	}, nil
}

func (a *app) Close() {
	a.bus.Close()
	_ = a.store.Close()
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "init",
		Short:   "Write a default config to ~/.haven/config.json",
		Example: "  haven init",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := getConfigPath()
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config already exists at %s", configPath)
			}
			if err := config.SaveConfig(configPath, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("%s is ready!\n\n", appName)
			fmt.Println("Next steps:")
			fmt.Println("  1. Add your API key to", configPath)
			fmt.Println("     or set HAVEN_PROVIDER_API_KEY")
			fmt.Println("  2. Chat: haven chat")
			return nil
		},
	}
}

func newSendCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.ExactArgs(1),
		Example: strings.Join([]string{
			"  haven send \"I'm feeling shaky tonight\"",
			"  haven send --session s-20260823-091500-1a2b3c4d \"still here\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.dispatcher.Process(cmd.Context(), sessionID, args[0])
			if err != nil {
				return err
			}
			fmt.Println(result.Content)
			for _, w := range result.Widgets {
				fmt.Printf("[widget %s]\n", w.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to resume (default: today's session)")
	return cmd
}

func newSessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "sessions",
		Short:   "List recent sessions",
		Example: "  haven sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStore(cfg.StoragePath())
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := store.GetRecentSessionIDs(cmd.Context(), 10)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No sessions yet.")
				return nil
			}
			mgr := session.NewManager(store)
			for _, id := range ids {
				marker := ""
				if mgr.IsFromToday(id) {
					marker = "  (today)"
				}
				fmt.Printf("  %s%s\n", id, marker)
			}
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the dispatcher as a bus-driven daemon with check-in reminders",
		Example: "  haven serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			scheduler, err := reminders.NewScheduler(cfg.Reminders, a.bus)
			if err != nil {
				return err
			}
			go scheduler.Run(ctx, func(ctx context.Context) bool {
				_, err := a.sessions.TodaySession(ctx)
				return err == nil
			})

			go func() {
				for {
					out, ok := a.bus.SubscribeOutbound(ctx)
					if !ok {
						return
					}
					fmt.Printf("[%s/%s] %s\n", out.Channel, out.ChatID, out.Content)
				}
			}()

			go a.dispatcher.Run(ctx)

			fmt.Println("haven serving, Ctrl+C to stop")
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt)
			<-sigChan

			fmt.Println("\nShutting down...")
			a.dispatcher.Stop()
			cancel()
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  haven version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
