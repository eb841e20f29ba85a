// Package context implements context management commands for reloadsyncctl.
package context

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for context management.
var Cmd = &cobra.Command{
	Use:   "context",
	Short: "Manage server contexts",
	Long: `Manage saved reloadsync server contexts.

A context bundles a server URL with the credentials used to reach it.
reloadsyncctl keeps one current context at a time; login and every
other command operate against it unless overridden with --server/--token.

Examples:
  # List all contexts
  reloadsyncctl context list

  # Switch the current context
  reloadsyncctl context use staging

  # Show the current context
  reloadsyncctl context current

  # Rename a context
  reloadsyncctl context rename staging stage-eu

  # Delete a context
  reloadsyncctl context delete staging`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(currentCmd)
	Cmd.AddCommand(useCmd)
	Cmd.AddCommand(renameCmd)
	Cmd.AddCommand(deleteCmd)
}
