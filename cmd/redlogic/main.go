package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coffersTech/redlogic/internal/config"
	"github.com/coffersTech/redlogic/internal/engine"
	"github.com/coffersTech/redlogic/internal/logging"
	"github.com/coffersTech/redlogic/internal/storage"
)

var (
	// Global flags
	cfgPath string
	verbose bool
	jsonOut bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "redlogic",
	Short: "Parse REDCap filter logic and build metric queries",
	Long: `redlogic turns REDCap filter logic and metric specifications into
structured conditions and SQL.

Examples:
  redlogic filter "[age] >= 18"
  redlogic metric "RATIO(patients, studies)"
  redlogic rules check rules/cleanup.yaml --dict project.rld
  redlogic serve`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", cfgPath, err)
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "redlogic.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print JSON output")

	rootCmd.AddCommand(metricCmd, filterCmd, rulesCmd, dictCmd, keysCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newEngine builds an engine from the loaded config.
func newEngine() (*engine.Engine, error) {
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	reader, err := storage.NewDictionaryReader()
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		Catalog:        cat,
		Logger:         logger,
		DataDir:        cfg.Server.DataDir,
		Retention:      cfg.GetRetention(),
		ReadDictionary: reader.ReadSnapshot,
	}), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
