package sessions

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reloadsync/reloadsync/cmd/reloadsyncctl/cmdutil"
	"github.com/reloadsync/reloadsync/pkg/apiclient"
)

var connectionsCmd = &cobra.Command{
	Use:   "connections <session-id>",
	Short: "List a session's connected devices",
	Long: `List the devices currently connected to a session.

Examples:
  # List connections for a session
  reloadsyncctl sessions connections design-review`,
	Args: cobra.ExactArgs(1),
	RunE: runConnections,
}

// ConnectionList is a list of connections for table rendering.
type ConnectionList []apiclient.ConnectionSummary

// Headers implements TableRenderer.
func (cl ConnectionList) Headers() []string {
	return []string{"CONNECTION ID", "DEVICE", "PLATFORM", "CONNECTED AT", "LAST PING"}
}

// Rows implements TableRenderer.
func (cl ConnectionList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		rows = append(rows, []string{
			c.ConnectionID,
			cmdutil.EmptyOr(c.DeviceID, "-"),
			cmdutil.EmptyOr(c.Platform, "-"),
			formatTime(c.ConnectedAt),
			formatTime(c.LastPingAt),
		})
	}
	return rows
}

func runConnections(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	connections, err := client.SessionConnections(sessionID)
	if err != nil {
		return fmt.Errorf("failed to list session connections: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, connections, len(connections) == 0, "No connections for this session.", ConnectionList(connections))
}
