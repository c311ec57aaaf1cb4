package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"redactd/internal/config"
	"redactd/internal/vault"
)

func newSecretCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the registered secret set",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	add := &cobra.Command{
		Use:   "add",
		Short: "Register a secret (read from stdin, never from argv)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret()
			if err != nil {
				return exitError(3, "read secret: %v", err)
			}

			store, err := openVault(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Register(secret); err != nil {
				return exitError(4, "register secret: %v", err)
			}
			fmt.Println("Secret registered.")
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Revoke a secret (read from stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret()
			if err != nil {
				return exitError(3, "read secret: %v", err)
			}

			store, err := openVault(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Revoke(secret); err != nil {
				return exitError(4, "revoke secret: %v", err)
			}
			fmt.Println("Secret revoked. Existing transcripts are unchanged; run rescan if needed.")
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Count registered secrets (values are never printed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openVault(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Printf("%d secret(s) registered.\n", len(store.List()))
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}

// readSecret reads the secret from stdin, trimming one trailing
// newline. Secrets are never passed as arguments so they stay out of
// shell history and process listings.
func readSecret() (string, error) {
	fi, err := os.Stdin.Stat()
	if err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		fmt.Fprint(os.Stderr, "Secret: ")
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", fmt.Errorf("empty secret")
	}
	return secret, nil
}

func openVault(configPath string) (*vault.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, exitError(3, "load config: %v", err)
	}

	passphrase := os.Getenv(cfg.Vault.PassphraseEnv)
	if passphrase == "" {
		return nil, exitError(3, "vault passphrase not set: export %s", cfg.Vault.PassphraseEnv)
	}

	store, err := vault.Open(cfg.Vault.Path, passphrase)
	if err != nil {
		return nil, exitError(4, "open vault: %v", err)
	}
	return store, nil
}
