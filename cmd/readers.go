package cmd

import (
	"github.com/spf13/cobra"

	"cryptnox/output"
	"cryptnox/transport"
)

var readersCmd = &cobra.Command{
	Use:   "readers",
	Short: "List available PC/SC readers",
	RunE: func(cmd *cobra.Command, args []string) error {
		readers, err := transport.ListReaders()
		if err != nil {
			return err
		}
		output.PrintReaderList(readers)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readersCmd)
}
