package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"spark-backend/internal/core/types"
	"spark-backend/internal/database"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the model",
	Long: `Start a conversation and stream the model's replies.

With a message argument a single turn is run. Without one, lines are read
from stdin until EOF, each line being one turn of the same conversation.

Examples:
  studio chat "What is a haiku?"
  studio chat --kind search "Who won the match yesterday?"
  studio chat --kind pro`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("kind", database.ChatKindChat, "conversation kind: chat, search or pro")
	chatCmd.Flags().String("model", "", "model id, defaults to the kind's model")
}

func runChat(c *cobra.Command, args []string) error {
	ctx := c.Context()

	kind, _ := c.Flags().GetString("kind")
	model, _ := c.Flags().GetString("model")

	session, err := app.Chat.StartSession(ctx, kind, model, "")
	if err != nil {
		return err
	}

	turn := func(text string) error {
		printed := 0
		reply, err := app.Chat.Send(ctx, session.ID, text, func(msg types.Message) {
			if len(msg.Text) > printed {
				fmt.Print(msg.Text[printed:])
				printed = len(msg.Text)
			}
		})
		fmt.Println()
		if err != nil {
			return fmt.Errorf("%s", types.UserMessage(err))
		}
		for i, citation := range reply.Citations {
			fmt.Printf("  [%d] %s %s\n", i+1, citation.Title, citation.URI)
		}
		return nil
	}

	if len(args) > 0 {
		return turn(strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text != "" {
			if err := turn(text); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		fmt.Print("> ")
	}
	fmt.Println()
	return scanner.Err()
}
