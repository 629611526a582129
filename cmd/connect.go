package cmd

import (
	"github.com/spf13/cobra"

	"cryptnox/channel"
	"cryptnox/output"
)

var strictCertShape bool

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Establish the secure channel and print the resulting session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		pcsc, err := openPCSC()
		if err != nil {
			return err
		}
		defer pcsc.Close()

		eng := channel.NewEngine(pcsc, channel.Options{
			Sink:                   debugSink{enabled: verbose},
			StrictCertificateShape: strictCertShape,
		})
		if err := eng.Connect(); err != nil {
			output.PrintError(err.Error())
			return err
		}
		defer eng.Disconnect()

		if !outputJSON {
			output.PrintSessionState(pcsc.Name(), eng.State(), eng.IsOpen())
		}
		return nil
	},
}

func init() {
	connectCmd.Flags().BoolVar(&strictCertShape, "strict-cert-shape", false,
		"structurally validate the card certificate's signature DER shape before trusting it")
	rootCmd.AddCommand(connectCmd)
}
