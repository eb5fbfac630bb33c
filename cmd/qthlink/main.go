// QTHLink — remote control gateway for home automation over packet radio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qthlink/qthlink/cmd/qthlink/cli"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "qthlink",
		Short: "QTHLink — home automation gateway for packet radio",
		Long: `QTHLink bridges amateur packet radio to a Home Assistant instance:
a terse telnet-style line protocol with TOTP authentication, tuned for
1200-baud cleartext links.`,
		Version:      version,
		SilenceUsage: true,
	}

	cli.RegisterServeCommand(rootCmd)
	cli.RegisterTOTPCommands(rootCmd)
	cli.RegisterUsersCommands(rootCmd)
	cli.RegisterAuditCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
