// Package sessions implements admin inspection commands for live
// reloadsync sessions.
package sessions

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for session inspection.
var Cmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect live hot-reload sessions",
	Long: `Inspect and manage live reloadsync sessions.

A session tracks one shared UI schema and the devices currently
subscribed to it. Session commands let an operator list active
sessions, inspect their connected devices, review recent apply
metrics, and force a full reload when a session's state looks wrong.

Examples:
  # List all active sessions
  reloadsyncctl sessions list

  # Show one session
  reloadsyncctl sessions get design-review

  # List connected devices for a session
  reloadsyncctl sessions connections design-review

  # Show recent apply metrics for a session
  reloadsyncctl sessions metrics design-review

  # Force every connected device to reload from scratch
  reloadsyncctl sessions reload design-review`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(connectionsCmd)
	Cmd.AddCommand(metricsCmd)
	Cmd.AddCommand(reloadCmd)
}
