package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qthlink/qthlink/internal/secrets"
)

// RegisterUsersCommands adds secret-store management commands.
func RegisterUsersCommands(root *cobra.Command) {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the TOTP users store",
	}
	usersCmd.AddCommand(newUsersEncryptCmd())
	usersCmd.AddCommand(newUsersListCmd())
	root.AddCommand(usersCmd)
}

func newUsersEncryptCmd() *cobra.Command {
	var inPath, outPath string

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a plaintext users file into a passphrase-protected store",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := readUsersFile(inPath)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				return fmt.Errorf("%s has no users", inPath)
			}

			pass, err := readPassphrase("New store passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if pass != confirm {
				return fmt.Errorf("passphrases do not match")
			}

			store, err := secrets.CreateEncrypted(outPath, pass)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, callsign := range sortedKeys(users) {
				if err := store.Put(callsign, users[callsign]); err != nil {
					return fmt.Errorf("adding %s: %w", callsign, err)
				}
			}
			if err := store.Save(); err != nil {
				return err
			}

			fmt.Printf("Encrypted %d users into %s\n", len(users), outPath)
			fmt.Println("Delete the plaintext file once verified.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&inPath, "in", "i", "users.yaml", "Plaintext users file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "users.enc", "Encrypted store to create")
	return cmd
}

func newUsersListCmd() *cobra.Command {
	var usersPath, encPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List callsigns in a users store (never prints secrets)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var identities []string
			if encPath != "" {
				pass, err := readPassphrase("Store passphrase: ")
				if err != nil {
					return err
				}
				store, err := secrets.OpenEncrypted(encPath, pass)
				if err != nil {
					return err
				}
				defer store.Close()
				identities = store.Identities()
			} else {
				store, err := secrets.OpenFile(usersPath)
				if err != nil {
					return err
				}
				identities = store.Identities()
			}

			if len(identities) == 0 {
				fmt.Println("No users found.")
				return nil
			}
			for _, id := range identities {
				fmt.Println(id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&usersPath, "users", "u", "users.yaml", "Plaintext users file")
	cmd.Flags().StringVarP(&encPath, "encrypted", "e", "", "Encrypted store (takes precedence)")
	return cmd
}
