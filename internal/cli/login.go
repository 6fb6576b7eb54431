package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/agentdesk/internal/models"
	"github.com/spf13/cobra"
)

var (
	loginAgentID     string
	loginDisplayName string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in as an agent",
	Long: `Save the agent identity used for every backend call.

The agent id needs at least 3 characters and the display name at least 2.

Examples:
  agentdesk login --agent-id agent-7 --name "Ada Lovelace"`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved agent identity",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in agent",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginAgentID, "agent-id", "", "agent id (required)")
	loginCmd.Flags().StringVarP(&loginDisplayName, "name", "n", "", "display name shown to customers (required)")
	_ = loginCmd.MarkFlagRequired("agent-id")
	_ = loginCmd.MarkFlagRequired("name")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	identity := models.AgentIdentity{AgentID: loginAgentID, DisplayName: loginDisplayName}.Normalize()
	if err := identity.Validate(); err != nil {
		return err
	}
	if err := identities.Save(ctx, identity); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", identity.DisplayName, identity.AgentID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := identities.Clear(context.Background()); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	identity, err := signedIn(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", identity.DisplayName, identity.AgentID)
	return nil
}
