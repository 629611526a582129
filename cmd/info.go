package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptnox/channel"
	"cryptnox/output"
)

var infoPIN string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Establish the secure channel and fetch GET CARD INFO",
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

		if infoPIN != "" {
			if _, _, _, err := eng.VerifyPIN(infoPIN); err != nil {
				return fmt.Errorf("verify pin: %w", err)
			}
		}

		data, sw1, sw2, err := eng.GetCardInfo()
		if !outputJSON {
			output.PrintSecureCommandResult("get card info", data, sw1, sw2, err)
		}
		if err != nil {
			return fmt.Errorf("get card info: %w", err)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().StringVar(&infoPIN, "pin", "", "verify this PIN before fetching card info")
	rootCmd.AddCommand(infoCmd)
}
