// Command cryptnox establishes and drives the Cryptnox NFC secure
// channel from the command line.
package main

import "cryptnox/cmd"

func main() {
	cmd.Execute()
}
