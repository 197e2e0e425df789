package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instrumentgpt/instrumentgpt/internal/config"
	"github.com/instrumentgpt/instrumentgpt/internal/store"
)

var conversationsOwner string

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation's message log",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	conversationsListCmd.Flags().StringVar(&conversationsOwner, "owner", chatOwner, "Owner to list conversations for")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.Open(config.ExpandHome(cfg.Storage.DBPath))
}

func runConversationsList(_ *cobra.Command, _ []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	convs, err := s.Conversations(conversationsOwner)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return nil
	}
	for _, c := range convs {
		fmt.Printf("%s  %s  %s\n", c.ID, c.UpdatedAt.Format("2006-01-02 15:04"), c.Title)
	}
	return nil
}

func runConversationsShow(_ *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	msgs, summary, _, err := s.Load(args[0])
	if err != nil {
		return err
	}
	if summary != "" {
		fmt.Printf("── summary ──\n%s\n\n", summary)
	}
	for _, m := range msgs {
		fmt.Printf("[%d] %s: %s\n\n", m.ID, m.Role.Label(), m.Content)
	}
	return nil
}

func runConversationsDelete(_ *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteConversation(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
