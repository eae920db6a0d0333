package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/havenapp/haven/pkg/safety"
)

func newChatCommand() *cobra.Command {
	var sessionID string
	var debug bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Long:  "Start an interactive session. Resumes today's session unless --session is given.",
		Example: strings.Join([]string{
			"  haven chat",
			"  haven chat --session s-20260823-091500-1a2b3c4d",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if debug {
				cfg.Logging.Level = "debug"
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return chatLoop(cmd.Context(), a, sessionID)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to resume")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func chatLoop(ctx context.Context, a *app, sessionID string) error {
	fmt.Printf("%s Interactive mode (Ctrl+C to exit, /help for commands)\n\n", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "You: ",
		HistoryFile:     filepath.Join(os.TempDir(), ".haven_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		return simpleChatLoop(ctx, a, sessionID)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nTake care.")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Take care.")
			return nil
		}
		if handled, newID := handleSlashCommand(ctx, a, sessionID, input); handled {
			if newID != "" {
				sessionID = newID
			}
			continue
		}

		sessionID = sendTurn(ctx, a, sessionID, input)
	}
}

func simpleChatLoop(ctx context.Context, a *app, sessionID string) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("You: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("\nTake care.")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Take care.")
			return nil
		}
		if handled, newID := handleSlashCommand(ctx, a, sessionID, input); handled {
			if newID != "" {
				sessionID = newID
			}
			continue
		}
		sessionID = sendTurn(ctx, a, sessionID, input)
	}
}

// sendTurn dispatches one message and prints the reply. Returns the session
// id the turn actually ran under so the REPL stays pinned to it.
func sendTurn(ctx context.Context, a *app, sessionID, input string) string {
	result, err := a.dispatcher.Process(ctx, sessionID, input)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return sessionID
	}
	fmt.Printf("\n%s: %s\n", appName, result.Content)
	for _, w := range result.Widgets {
		fmt.Printf("  [widget %s %v]\n", w.ID, w.Params)
	}
	fmt.Println()
	return result.SessionID
}

// handleSlashCommand processes REPL commands. Returns handled plus an
// optional replacement session id.
func handleSlashCommand(ctx context.Context, a *app, sessionID, input string) (bool, string) {
	if !strings.HasPrefix(input, "/") {
		return false, ""
	}
	parts := strings.Fields(input)

	switch parts[0] {
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /new               Start a fresh session")
		fmt.Println("  /fork              Fork the current session")
		fmt.Println("  /sessions          List recent sessions")
		fmt.Println("  /resources         Show crisis and support resources")
		fmt.Println("  exit               Leave the chat")
		return true, ""

	case "/new":
		s := a.sessions.Create()
		fmt.Printf("Started session %s\n", s.ID)
		return true, s.ID

	case "/fork":
		if sessionID == "" {
			fmt.Println("No active session to fork yet.")
			return true, ""
		}
		fork, err := a.sessions.Fork(ctx, sessionID)
		if err != nil {
			fmt.Printf("Error forking session: %v\n", err)
			return true, ""
		}
		if err := a.sessions.Save(ctx, fork); err != nil {
			fmt.Printf("Error saving fork: %v\n", err)
			return true, ""
		}
		fmt.Printf("Forked %s into %s\n", sessionID, fork.ID)
		return true, fork.ID

	case "/sessions":
		ids, err := a.store.GetRecentSessionIDs(ctx, 10)
		if err != nil {
			fmt.Printf("Error listing sessions: %v\n", err)
			return true, ""
		}
		if len(ids) == 0 {
			fmt.Println("No sessions yet.")
			return true, ""
		}
		for _, id := range ids {
			marker := ""
			if id == sessionID {
				marker = "  (current)"
			} else if a.sessions.IsFromToday(id) {
				marker = "  (today)"
			}
			fmt.Printf("  %s%s\n", id, marker)
		}
		return true, ""

	case "/resources":
		bundle := safety.Resources(a.cfg.Safety.EmergencyContact)
		fmt.Println("Support resources:")
		for _, r := range bundle.Resources {
			fmt.Printf("  %s: %s\n    %s\n", r.Name, r.Contact, r.Description)
		}
		if bundle.EmergencyContact != "" {
			fmt.Printf("  Your emergency contact: %s\n", bundle.EmergencyContact)
		}
		return true, ""

	default:
		fmt.Printf("Unknown command: %s (try /help)\n", parts[0])
		return true, ""
	}
}
