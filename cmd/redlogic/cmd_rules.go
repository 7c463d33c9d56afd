package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/redlogic/internal/registry"
	"github.com/coffersTech/redlogic/internal/rules"
)

var dictPath string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with conditional change rule files",
}

// rulesCheckCmd validates rule files
var rulesCheckCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Parse rule files and check their fields against a dictionary",
	Long: `Parses each rule file (YAML, optionally zstd-compressed as .zst) and,
when a dictionary snapshot is given with --dict or configured under
dictionary.snapshot, checks that every field exists in the project.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRulesCheck,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Print a rule file in canonical form",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesShow,
}

func init() {
	rulesCheckCmd.Flags().StringVar(&dictPath, "dict", "", "Dictionary snapshot (.rld)")
	rulesCmd.AddCommand(rulesCheckCmd, rulesShowCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	path := dictPath
	if path == "" {
		path = cfg.Dictionary.Snapshot
	}
	if path != "" {
		if err := eng.LoadDictionary(path); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, file := range args {
		rs, err := eng.LoadRules(file)
		if err != nil {
			failed++
			logger.Warn("Rule file rejected", zap.String("file", file), zap.Error(err))
			fmt.Fprintf(out, "FAIL %s\n  %v\n", file, err)
			continue
		}
		if !jsonOut {
			fmt.Fprintf(out, "ok   %s (%s, %d rules)\n", file, rs.Name, len(rs.Filters))
		}
	}

	if jsonOut {
		if err := printJSON(cmd, eng.Store().List()); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rule files failed", failed, len(args))
	}
	return nil
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	rs, err := rules.LoadFile(args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd, registry.NewRuleSetView(rs))
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(rs); err != nil {
		return err
	}
	return enc.Close()
}
