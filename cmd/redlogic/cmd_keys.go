package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coffersTech/redlogic/internal/controller"
	"github.com/coffersTech/redlogic/internal/pkg/security"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys for the HTTP service",
}

var keysAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Issue an API key and print its secret once",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysAdd,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete NAME|ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysDelete,
}

func init() {
	keysCmd.AddCommand(keysAddCmd, keysListCmd, keysDeleteCmd)
}

// openKeyStore loads the sealed key store, creating the master key on
// first use.
func openKeyStore() (*controller.Store, error) {
	sealer, generated, err := security.InitMasterKey(cfg.Server.MasterKeyFile)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Warn("Generated a new master key; keep it safe", zap.String("path", cfg.Server.MasterKeyFile))
	}

	store := controller.NewStore(cfg.Server.KeysFile, sealer)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func runKeysAdd(cmd *cobra.Command, args []string) error {
	store, err := openKeyStore()
	if err != nil {
		return err
	}
	secret, key, err := store.AddKey(args[0])
	if err != nil {
		return fmt.Errorf("add key %q: %w", args[0], err)
	}
	logger.Info("API key issued", zap.String("name", key.Name), zap.String("id", key.ID))

	if jsonOut {
		return printJSON(cmd, map[string]string{"id": key.ID, "name": key.Name, "secret": secret})
	}
	fmt.Fprintln(cmd.OutOrStdout(), secret)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	store, err := openKeyStore()
	if err != nil {
		return err
	}
	keys := store.ListKeys()
	if jsonOut {
		return printJSON(cmd, keys)
	}
	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintf(out, "%s\t%s\t%s\n", k.ID, k.Name, time.Unix(k.CreatedAt, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	store, err := openKeyStore()
	if err != nil {
		return err
	}
	if err := store.DeleteKey(args[0]); err != nil {
		return fmt.Errorf("delete key %q: %w", args[0], err)
	}
	logger.Info("API key revoked", zap.String("key", args[0]))
	return nil
}
