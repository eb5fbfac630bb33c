package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

// RegisterTOTPCommands adds operator-side TOTP provisioning commands.
func RegisterTOTPCommands(root *cobra.Command) {
	totpCmd := &cobra.Command{
		Use:   "totp",
		Short: "Provision and test TOTP credentials",
	}
	totpCmd.AddCommand(newTOTPNewCmd())
	totpCmd.AddCommand(newTOTPCodeCmd())
	root.AddCommand(totpCmd)
}

func newTOTPNewCmd() *cobra.Command {
	var usersPath, qrPath string

	cmd := &cobra.Command{
		Use:   "new <callsign>",
		Short: "Generate a TOTP secret for a callsign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callsign := strings.ToUpper(strings.TrimSpace(args[0]))
			if callsign == "" {
				return fmt.Errorf("callsign is required")
			}

			key, err := totp.Generate(totp.GenerateOpts{
				Issuer:      "QTHLink",
				AccountName: callsign,
				Period:      30,
				Digits:      otp.DigitsSix,
				Algorithm:   otp.AlgorithmSHA1,
			})
			if err != nil {
				return fmt.Errorf("generating secret: %w", err)
			}

			fmt.Printf("Callsign: %s\n", callsign)
			fmt.Printf("Secret:   %s\n", key.Secret())
			fmt.Printf("URL:      %s\n", key.URL())

			if qrPath != "" {
				if err := qrcode.WriteFile(key.URL(), qrcode.Medium, 256, qrPath); err != nil {
					return fmt.Errorf("writing QR code: %w", err)
				}
				fmt.Printf("QR code:  %s\n", qrPath)
			}

			if usersPath != "" {
				users, err := readUsersFile(usersPath)
				if err != nil {
					return err
				}
				if _, exists := users[callsign]; exists {
					return fmt.Errorf("%s already exists in %s", callsign, usersPath)
				}
				users[callsign] = key.Secret()
				if err := writeUsersFile(usersPath, users); err != nil {
					return err
				}
				fmt.Printf("Added to: %s\n", usersPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&usersPath, "users", "u", "", "Users file to add the callsign to")
	cmd.Flags().StringVarP(&qrPath, "qr", "q", "", "Write a provisioning QR code PNG to this path")
	return cmd
}

func newTOTPCodeCmd() *cobra.Command {
	var usersPath, secret string

	cmd := &cobra.Command{
		Use:   "code [callsign]",
		Short: "Print the current code for a callsign or raw secret",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				if len(args) != 1 {
					return fmt.Errorf("a callsign (with --users) or --secret is required")
				}
				users, err := readUsersFile(usersPath)
				if err != nil {
					return err
				}
				callsign := strings.ToUpper(strings.TrimSpace(args[0]))
				s, ok := users[callsign]
				if !ok {
					return fmt.Errorf("%s not found in %s", callsign, usersPath)
				}
				secret = s
			}

			code, err := totp.GenerateCode(secret, time.Now())
			if err != nil {
				return fmt.Errorf("computing code: %w", err)
			}
			fmt.Println(code)
			return nil
		},
	}
	cmd.Flags().StringVarP(&usersPath, "users", "u", "users.yaml", "Users file to look the callsign up in")
	cmd.Flags().StringVarP(&secret, "secret", "s", "", "Raw base32 secret (bypasses the users file)")
	return cmd
}
