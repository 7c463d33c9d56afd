package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coffersTech/redlogic/internal/redcap"
	"github.com/coffersTech/redlogic/internal/storage"
)

var instrumentFilter string

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Manage project dictionary snapshots",
}

// dictImportCmd converts a metadata export into a snapshot
var dictImportCmd = &cobra.Command{
	Use:   "import METADATA.json OUT.rld",
	Short: "Build a dictionary snapshot from a REDCap metadata export",
	Args:  cobra.ExactArgs(2),
	RunE:  runDictImport,
}

var dictShowCmd = &cobra.Command{
	Use:   "show SNAPSHOT",
	Short: "List the fields of a dictionary snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runDictShow,
}

func init() {
	dictShowCmd.Flags().StringVar(&instrumentFilter, "instrument", "", "Only list this instrument")
	dictCmd.AddCommand(dictImportCmd, dictShowCmd)
}

func runDictImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	dict, err := redcap.ParseMetadata(data)
	if err != nil {
		return err
	}

	w, err := storage.NewDictionaryWriter()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.WriteSnapshot(args[1], dict); err != nil {
		return err
	}

	logger.Info("Snapshot written",
		zap.String("path", args[1]),
		zap.Int("fields", dict.Len()),
		zap.Int("instruments", len(dict.Instruments())))
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d fields in %d instruments\n", args[1], dict.Len(), len(dict.Instruments()))
	return nil
}

func runDictShow(cmd *cobra.Command, args []string) error {
	r, err := storage.NewDictionaryReader()
	if err != nil {
		return err
	}
	defer r.Close()

	it, err := r.NewIterator(args[0], instrumentFilter)
	if err != nil {
		return err
	}
	defer it.Close()

	var pairs []storage.Pair
	for it.Next() {
		pairs = append(pairs, it.Pair())
	}
	if err := it.Error(); err != nil {
		return err
	}

	if jsonOut {
		if pairs == nil {
			pairs = []storage.Pair{}
		}
		return printJSON(cmd, pairs)
	}
	out := cmd.OutOrStdout()
	for _, p := range pairs {
		fmt.Fprintf(out, "%s\t%s\n", p.Instrument, p.Field)
	}
	return nil
}
