package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptnox/channel"
	"cryptnox/output"
)

var pinCmd = &cobra.Command{
	Use:   "pin <pin>",
	Short: "Establish the secure channel and verify the card PIN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pcsc, err := openPCSC()
		if err != nil {
			return err
		}
		defer pcsc.Close()

		eng := channel.NewEngine(pcsc, channel.Options{Sink: debugSink{enabled: verbose}})
		if err := eng.Connect(); err != nil {
			output.PrintError(err.Error())
			return err
		}
		defer eng.Disconnect()

		data, sw1, sw2, err := eng.VerifyPIN(args[0])
		if !outputJSON {
			output.PrintSecureCommandResult("verify pin", data, sw1, sw2, err)
		}
		if err != nil {
			return fmt.Errorf("verify pin: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pinCmd)
}
