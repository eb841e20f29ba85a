package sessions

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reloadsync/reloadsync/cmd/reloadsyncctl/cmdutil"
	"github.com/reloadsync/reloadsync/internal/cli/output"
)

var getCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show one session",
	Long: `Show details for a single session.

Examples:
  # Show a session
  reloadsyncctl sessions get design-review

  # Show as JSON
  reloadsyncctl sessions get design-review -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	session, err := client.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	table := output.NewTableData("ID", "MEMBERS", "LAST SEQUENCE", "SCHEMA VERSION")
	table.AddRow(
		session.ID,
		fmt.Sprintf("%d", session.MemberCount),
		fmt.Sprintf("%d", session.LastSequence),
		cmdutil.EmptyOr(session.SchemaVersion, "-"),
	)

	return cmdutil.PrintResource(os.Stdout, session, table)
}
