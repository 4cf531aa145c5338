package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/orchestrator"
)

// NewChatCmd constructs the `xmem chat` command: an interactive REPL that
// answers with session memory and long-term memories injected into every
// prompt.
func NewChatCmd() *cobra.Command {
	var (
		sessionID  string
		collection string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with memory-augmented responses",
		Long: `Start an interactive chat session.

Every reply is generated with the session's conversation history and the
most relevant long-term memories injected into the prompt. Turns are
persisted to the session store so memory accrues across runs.

Examples:
  xmem chat
  xmem chat --session support-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			rt, err := buildRuntime(ctx, log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer rt.close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			sessions, err := rt.reg.Session("")
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
			boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
			fmt.Println(boldGreen("xmem chat"))
			fmt.Printf("Session: %s\n", boldCyan(sessionID))
			fmt.Println("Type your message and press Enter. Type 'exit' or press Ctrl+C to quit.")
			fmt.Println()

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print(boldGreen("You: "))
				if !scanner.Scan() {
					break
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if strings.EqualFold(input, "exit") {
					break
				}

				reply, err := rt.orch.Query(ctx, input, sessionID, &orchestrator.Opts{
					VectorProvider: provider,
					Collection:     collection,
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					continue
				}

				fmt.Printf("%s%s\n\n", boldCyan("Assistant: "), reply)

				appendTurn(cmd, rt, sessions, sessionID, "user", input, log)
				appendTurn(cmd, rt, sessions, sessionID, "assistant", reply, log)
			}

			return scanner.Err()
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (generated when empty)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to retrieve memories from")
	cmd.Flags().StringVar(&provider, "provider", "", "Vector backend to retrieve memories from")

	return cmd
}

// appendTurn persists one conversation turn with its embedding. Failures
// are logged, not fatal: the chat keeps working without persisted memory.
func appendTurn(cmd *cobra.Command, rt *runtime, sessions sessionAppender, sessionID, role, content string, log *slog.Logger) {
	ctx := cmd.Context()

	msg := memory.SessionMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if vec, err := rt.embed.Embed(ctx, content); err == nil {
		msg.Embedding = vec
	} else {
		log.Warn("chat: turn not embedded", slog.Any("error", err))
	}

	if err := sessions.AppendMessage(ctx, sessionID, msg); err != nil {
		log.Warn("chat: turn not persisted", slog.Any("error", err))
	}
}

// sessionAppender is the slice of the session store chat needs.
type sessionAppender interface {
	AppendMessage(ctx context.Context, sessionID string, msg memory.SessionMessage) error
}
