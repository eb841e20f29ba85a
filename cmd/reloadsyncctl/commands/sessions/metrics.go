package sessions

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reloadsync/reloadsync/cmd/reloadsyncctl/cmdutil"
	"github.com/reloadsync/reloadsync/pkg/apiclient"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <session-id>",
	Short: "Show recent apply metrics for a session",
	Long: `Show the mirrored ring of device-reported apply outcomes for a
session: the last update each device applied, how long it took, and
whether it succeeded.

Examples:
  # Show apply metrics for a session
  reloadsyncctl sessions metrics design-review`,
	Args: cobra.ExactArgs(1),
	RunE: runMetrics,
}

// MetricList is a list of apply metrics for table rendering.
type MetricList []apiclient.ApplyMetric

// Headers implements TableRenderer.
func (ml MetricList) Headers() []string {
	return []string{"SEQUENCE", "TYPE", "APPLY TIME (MS)", "SUCCESS", "ERROR", "TIMESTAMP"}
}

// Rows implements TableRenderer.
func (ml MetricList) Rows() [][]string {
	rows := make([][]string, 0, len(ml))
	for _, m := range ml {
		rows = append(rows, []string{
			fmt.Sprintf("%d", m.Sequence),
			m.Type,
			fmt.Sprintf("%d", m.ApplyTimeMs),
			cmdutil.BoolToYesNo(m.Success),
			cmdutil.EmptyOr(m.Error, "-"),
			formatUnixMillis(m.Timestamp),
		})
	}
	return rows
}

func runMetrics(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	metrics, err := client.SessionMetrics(sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session metrics: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, metrics, len(metrics) == 0, "No apply metrics recorded for this session.", MetricList(metrics))
}
