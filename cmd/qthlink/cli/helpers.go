package cli

import (
	"fmt"
	"os"
	"sort"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/qthlink/qthlink/internal/auth"
	"github.com/qthlink/qthlink/internal/config"
	"github.com/qthlink/qthlink/internal/secrets"
)

// openSecretStore opens the configured TOTP secret store. The encrypted
// store takes precedence and prompts for its passphrase.
func openSecretStore(cfg *config.Config) (auth.SecretSource, error) {
	if cfg.Auth.EncryptedUsersFile != "" {
		pass, err := readPassphrase("Users store passphrase: ")
		if err != nil {
			return nil, err
		}
		return secrets.OpenEncrypted(cfg.Auth.EncryptedUsersFile, pass)
	}
	return secrets.OpenFile(cfg.Auth.UsersFile)
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	fmt.Fprintln(os.Stderr)
	return string(passBytes), nil
}

// plainUsersFile mirrors the users.yaml layout.
type plainUsersFile struct {
	Users map[string]string `yaml:"users"`
}

func readUsersFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	var f plainUsersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Users == nil {
		f.Users = map[string]string{}
	}
	return f.Users, nil
}

func writeUsersFile(path string, users map[string]string) error {
	data, err := yaml.Marshal(plainUsersFile{Users: users})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
