package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/spf13/cobra"
)

var conversationStatuses []string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List conversations waiting for an agent",
	RunE:  runQueue,
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations assigned to you",
	Long: `List conversations assigned to the signed-in agent.

Examples:
  agentdesk conversations
  agentdesk conversations --status ASSIGNED,CLOSED`,
	RunE: runConversations,
}

func init() {
	conversationsCmd.Flags().StringSliceVarP(&conversationStatuses, "status", "s", []string{string(models.StatusAssigned)}, "statuses to include")
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	entries, err := apiClient.ListQueue(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	printQueue(cmd.OutOrStdout(), entries, time.Now())
	return nil
}

func runConversations(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	identity, err := signedIn(ctx)
	if err != nil {
		return err
	}
	statuses, err := models.ParseStatuses(conversationStatuses)
	if err != nil {
		return err
	}

	convs, err := apiClient.ListConversations(ctx, identity.AgentID, statuses)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	printConversations(cmd.OutOrStdout(), convs)
	return nil
}

func printQueue(w io.Writer, entries []models.QueueEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No customers waiting.")
		return
	}

	fmt.Fprintf(w, "Waiting (%d):\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(w, "%2d. %s", i+1, e.ConversationID)
		if e.Channel != "" {
			fmt.Fprintf(w, " [%s]", e.Channel)
		}
		if e.EnqueuedAt != nil {
			fmt.Fprintf(w, "  waiting %s", formatWait(now.Sub(*e.EnqueuedAt)))
		}
		fmt.Fprintln(w)
		if verbose && e.CustomerID != "" {
			fmt.Fprintf(w, "    Customer: %s\n", e.CustomerID)
		}
	}
}

func printConversations(w io.Writer, convs []models.ConversationMetadata) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return
	}

	fmt.Fprintf(w, "Conversations (%d):\n\n", len(convs))
	for i := range convs {
		c := &convs[i]
		fmt.Fprintf(w, "- %s [%s] %s\n", c.ID, c.Status, c.CustomerName("Customer"))
		if verbose && len(c.Tags) > 0 {
			fmt.Fprintf(w, "  Tags: %s\n", strings.Join(c.Tags, ", "))
		}
	}
}

// formatWait renders a wait time as 45s, 3m or 1h12m.
func formatWait(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
