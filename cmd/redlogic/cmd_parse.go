package main

import (
	"fmt"

	"github.com/SnellerInc/sneller/expr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cellValue string

// metricCmd builds metric SQL
var metricCmd = &cobra.Command{
	Use:   "metric SPEC",
	Short: "Build the SQL for a metric",
	Long: `Validates a metric specification and prints its SQL.

A specification is ACTION first [second] or ACTION(first[, second]) where
ACTION is SUM, DISTINCT or RATIO. Only RATIO takes a second entity.

Example:
  redlogic metric DISTINCT patients
  redlogic metric "RATIO(patients, studies)"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMetric,
}

// filterCmd parses filter logic
var filterCmd = &cobra.Command{
	Use:   "filter LOGIC",
	Short: "Parse a single-field filter logic condition",
	Long: `Parses REDCap filter logic such as "[age] >= 18" or "[race(2)] = '1'"
and prints the field, operator, value and equivalent SQL predicate.

With --cell the condition is also applied to a cell value.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().StringVar(&cellValue, "cell", "", "Test the condition against this cell value")
}

func runMetric(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	m, err := eng.ParseMetric(joinArgs(args))
	if err != nil {
		return err
	}
	logger.Debug("Metric built", zap.Stringer("metric", m))

	if jsonOut {
		return printJSON(cmd, m)
	}
	fmt.Fprintln(cmd.OutOrStdout(), m.SQL())
	return nil
}

func runFilter(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	cond, err := eng.ParseCondition(joinArgs(args))
	if err != nil {
		return err
	}

	var matched *bool
	if cmd.Flags().Changed("cell") {
		ok, err := cond.Test(cellValue)
		if err != nil {
			return err
		}
		matched = &ok
	}

	if jsonOut {
		return printJSON(cmd, struct {
			Condition interface{} `json:"condition"`
			Column    string      `json:"column"`
			Where     string      `json:"where"`
			Matched   *bool       `json:"matched,omitempty"`
		}{cond, cond.Column(), expr.ToString(cond.Expr()), matched})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "field:     %s\n", cond.Field)
	fmt.Fprintf(out, "column:    %s\n", cond.Column())
	fmt.Fprintf(out, "operator:  %s\n", cond.Op)
	fmt.Fprintf(out, "value:     %s (%s)\n", cond.Value, cond.Value.Kind)
	fmt.Fprintf(out, "where:     %s\n", expr.ToString(cond.Expr()))
	if matched != nil {
		fmt.Fprintf(out, "matched:   %v\n", *matched)
	}
	return nil
}
