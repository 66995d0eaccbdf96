package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/store"
	"github.com/mtzanidakis/agency/internal/vault"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Vault.Passphrase == "" {
		return fmt.Errorf("vault passphrase not configured, set AGENCY_VAULT_PASSPHRASE")
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	v := vault.New(cfg.Vault.Passphrase, db)

	switch args[0] {
	case "list":
		return vaultList(v)
	case "set":
		return vaultSet(v, args[1:])
	case "get":
		return vaultGet(v, args[1:])
	case "delete":
		return vaultDelete(v, args[1:])
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: agency vault <command>

Commands:
  list                          List credentials (names only)
  set <id> <name> --value <str> Store a string credential
  set <id> <name> --file <path> Store a credential from a file
  get <id>                      Retrieve and decrypt a credential
  delete <id>                   Delete a credential

Environment:
  AGENCY_VAULT_PASSPHRASE       Required. Encryption passphrase.
`)
}

func vaultList(v *vault.Vault) error {
	names, err := v.ListCredentials()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No credentials stored.")
		return nil
	}

	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\n", id, names[id])
	}
	return w.Flush()
}

func vaultSet(v *vault.Vault, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: agency vault set <id> <name> --value <string> | --file <path>")
	}

	id, name := args[0], args[1]
	var value []byte

	switch args[2] {
	case "--value":
		value = []byte(args[3])
	case "--file":
		data, err := os.ReadFile(args[3])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		value = data
	default:
		return fmt.Errorf("expected --value or --file, got %s", args[2])
	}

	if err := v.StoreCredential(id, name, value); err != nil {
		return err
	}
	fmt.Printf("Credential %q saved\n", id)
	return nil
}

func vaultGet(v *vault.Vault, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agency vault get <id>")
	}

	plaintext, err := v.ResolveCredential(args[0])
	if err != nil {
		return err
	}

	fmt.Print(string(plaintext))
	if len(plaintext) > 0 && plaintext[len(plaintext)-1] != '\n' {
		fmt.Println()
	}
	return nil
}

func vaultDelete(v *vault.Vault, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agency vault delete <id>")
	}
	if err := v.DeleteCredential(args[0]); err != nil {
		return err
	}
	fmt.Printf("Credential %q deleted\n", args[0])
	return nil
}
