// Command dap-probe drives a CMSIS-DAP adaptor through the ADIv5 transaction
// engine: connect over SWD or JTAG, identify the Debug Port, and dump target
// memory.
package main

import "github.com/blackmagic-debug/blackmagic-sub009/cmd/dap-probe/cmd"

func main() {
	cmd.Execute()
}
