package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reloadsync/reloadsync/cmd/reloadsyncctl/cmdutil"
	"github.com/reloadsync/reloadsync/internal/cli/prompt"
)

var reloadForce bool

var reloadCmd = &cobra.Command{
	Use:   "reload <session-id>",
	Short: "Force every connected device to reload",
	Long: `Broadcast a Reload message to every device connected to a session,
asking each one to discard its current schema and re-request a full
update. Use this when a session's incremental state looks wrong and
you want every device back on a known-good baseline.

Examples:
  # Force a reload, with confirmation
  reloadsyncctl sessions reload design-review

  # Force a reload without prompting
  reloadsyncctl sessions reload design-review --force`,
	Args: cobra.ExactArgs(1),
	RunE: runReload,
}

func init() {
	reloadCmd.Flags().BoolVarP(&reloadForce, "force", "f", false, "Skip the confirmation prompt")
}

func runReload(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Force reload session '%s'?", sessionID), reloadForce)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.ForceReload(sessionID); err != nil {
		return fmt.Errorf("failed to force reload: %w", err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Reload broadcast to session '%s'", sessionID))
	return nil
}
