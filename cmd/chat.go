package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/instrumentgpt/instrumentgpt/internal/config"
	"github.com/instrumentgpt/instrumentgpt/internal/dependency"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// chatOwner identifies the local terminal user in the store.
const chatOwner = "cli:local"

var chatMessage string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the diagnostics agent",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	if chatMessage != "" {
		return runSingleMessage(container)
	}
	return runInteractive(container)
}

// runSingleMessage sends one question and prints the response.
func runSingleMessage(container *dependency.Container) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	engine := container.Engine()
	id, err := engine.EnsureConversation(chatOwner, chatMessage)
	if err != nil {
		return err
	}

	text, err := engine.ProcessTurn(ctx, id, chatMessage, printProgress)
	if err != nil {
		return err
	}
	printResponse(text)
	return nil
}

// runInteractive starts the REPL: each line runs one full turn. /new opens a
// fresh conversation, /like saves the last answer to the knowledge base.
func runInteractive(container *dependency.Container) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit, /new, /like)\n\n", logo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listenForSignals(cancel)

	engine := container.Engine()
	scanner := bufio.NewScanner(os.Stdin)
	conversationID := ""

	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		switch {
		case line == "/new":
			id, err := container.Store().CreateConversation(chatOwner, "")
			if err != nil {
				fmt.Fprintf(os.Stderr, "new conversation: %v\n", err)
				continue
			}
			conversationID = id
			fmt.Println("Started a new conversation.")
			continue

		case line == "/like":
			likeLastAnswer(container, conversationID)
			continue
		}

		if conversationID == "" {
			id, err := engine.EnsureConversation(chatOwner, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "open conversation: %v\n", err)
				continue
			}
			conversationID = id
		}

		text, err := engine.ProcessTurn(ctx, conversationID, line, printProgress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResponse(text)
	}
}

// likeLastAnswer queues the conversation's last assistant message for
// knowledge-base summarization.
func likeLastAnswer(container *dependency.Container, conversationID string) {
	if conversationID == "" {
		fmt.Println("Nothing to like yet.")
		return
	}
	msgs, err := container.Store().Messages(conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load messages: %v\n", err)
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == schema.RoleAssistant {
			if err := container.Knowledge().Like(conversationID, msgs[i].ID); err != nil {
				fmt.Fprintf(os.Stderr, "like: %v\n", err)
				return
			}
			fmt.Println("Saving this answer to the knowledge base...")
			return
		}
	}
	fmt.Println("Nothing to like yet.")
}

// listenForSignals cancels ctx on SIGINT or SIGTERM and exits.
func listenForSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nGoodbye!")
		cancel()
		os.Exit(0)
	}()
}

func printProgress(ev schema.Event) {
	if ev.Type == schema.EventTool {
		fmt.Printf("  ↳ %s\n", ev.Payload)
	}
}

func printResponse(text string) {
	fmt.Printf("\n%s instrumentgpt\n%s\n\n", logo, text)
}
