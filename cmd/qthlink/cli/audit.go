package cli

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/qthlink/qthlink/internal/audit"
)

// RegisterAuditCommands adds audit-log inspection commands.
func RegisterAuditCommands(root *cobra.Command) {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	auditCmd.AddCommand(newAuditVerifyCmd())
	root.AddCommand(auditCmd)
}

func newAuditVerifyCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sql.Open("sqlite3", dbPath)
			if err != nil {
				return fmt.Errorf("opening %s: %w", dbPath, err)
			}
			defer db.Close()

			valid, count, err := audit.Verify(db)
			if err != nil {
				return err
			}
			if !valid {
				return fmt.Errorf("audit chain BROKEN after %d valid records", count)
			}
			fmt.Printf("Audit chain OK (%d records)\n", count)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dbPath, "db", "d", "qthlink-audit.db", "Audit database path")
	return cmd
}
