package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cryptnox/output"
	"cryptnox/transport"
)

var (
	version = "1.0.0"

	readerIndex int
	verbose     bool
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "cryptnox",
	Short: "Cryptnox secure channel client",
	Long: `cryptnox v` + version + `

Establishes and drives the Cryptnox NFC secure channel: ECDH P-256 key
agreement, SHA-512 session key derivation, and AES-CBC / AES-CBC-MAC
secure messaging with a rolling IV.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&readerIndex, "reader", "r", -1,
		"reader index (use 'cryptnox readers' to list available readers)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"print every APDU exchanged with the card")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"suppress table output (no JSON is printed in its place)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// debugSink adapts --verbose to channel.Sink.
type debugSink struct{ enabled bool }

func (s debugSink) Printf(format string, args ...any) {
	if s.enabled {
		fmt.Printf(format+"\n", args...)
	}
}

func (s debugSink) PrintHex(label string, data []byte) {
	if s.enabled {
		output.PrintAPDUTrace(label, data)
	}
}

// openPCSC resolves --reader, auto-selecting when exactly one reader is
// present, and connects to it.
func openPCSC() (*transport.PCSC, error) {
	if readerIndex < 0 {
		readers, err := transport.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("failed to list readers: %w", err)
		}
		if len(readers) == 0 {
			return nil, fmt.Errorf("no smart card readers found")
		}
		if len(readers) == 1 {
			readerIndex = 0
			if !outputJSON {
				output.PrintSuccess(fmt.Sprintf("auto-selected reader: %s", readers[0]))
			}
		} else {
			output.PrintReaderList(readers)
			return nil, fmt.Errorf("multiple readers found, use -r <index> to select one")
		}
	}
	return transport.OpenPCSC(readerIndex)
}
