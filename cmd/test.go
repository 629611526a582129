package cmd

import (
	"crypto/rand"
	"errors"

	"github.com/spf13/cobra"

	"cryptnox/output"
	"cryptnox/testing"
)

var testReportPath string

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the secure channel property and scenario suite against a mock card",
	Long: `Runs the full set of protocol property checks and end-to-end
session scenarios against a simulated card. No reader or physical card
is required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		suite := testing.NewSuite(rand.Reader)
		suite.RunAll()

		if !outputJSON {
			output.PrintTestSummary(suite.Results)
		}
		if testReportPath != "" {
			if err := suite.GenerateReport(testReportPath); err != nil {
				return err
			}
			output.PrintSuccess("wrote report to " + testReportPath)
		}

		summary := suite.GetSummary()
		if summary.Failed > 0 {
			cmd.SilenceUsage = true
			return errors.New("one or more checks failed")
		}
		return nil
	},
}

func init() {
	testCmd.Flags().StringVar(&testReportPath, "report", "", "write a JSON report to this path")
	rootCmd.AddCommand(testCmd)
}
