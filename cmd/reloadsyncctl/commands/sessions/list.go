package sessions

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reloadsync/reloadsync/cmd/reloadsyncctl/cmdutil"
	"github.com/reloadsync/reloadsync/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all active sessions",
	Long: `List all sessions currently tracked by the server.

Examples:
  # List sessions as table
  reloadsyncctl sessions list

  # List as JSON
  reloadsyncctl sessions list -o json`,
	RunE: runList,
}

// SessionList is a list of sessions for table rendering.
type SessionList []apiclient.SessionSummary

// Headers implements TableRenderer.
func (sl SessionList) Headers() []string {
	return []string{"ID", "MEMBERS", "LAST SEQUENCE", "SCHEMA VERSION"}
}

// Rows implements TableRenderer.
func (sl SessionList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		rows = append(rows, []string{
			s.ID,
			fmt.Sprintf("%d", s.MemberCount),
			fmt.Sprintf("%d", s.LastSequence),
			cmdutil.EmptyOr(s.SchemaVersion, "-"),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	sessions, err := client.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, sessions, len(sessions) == 0, "No active sessions.", SessionList(sessions))
}
