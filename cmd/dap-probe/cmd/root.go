package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	vendor  uint16
	product uint16
	log     = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "dap-probe",
	Short: "ADIv5 transaction engine over a CMSIS-DAP probe",
	Long: `dap-probe drives a CMSIS-DAP adaptor through the ADIv5 transaction engine:
bring up the probe, connect over SWD or JTAG, identify the Debug Port, and
read target memory.

Examples:
  dap-probe info --vid 0x2E8A --pid 0x000C            # bring-up + DAP_Info dump
  dap-probe swd-read --vid 0x2E8A --pid 0x000C        # read DPIDR over SWD
  dap-probe mem-dump --vid 0x2E8A --pid 0x000C \
    --apsel 0 --addr 0x20000000 --len 256             # dump target RAM`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().Uint16Var(&vendor, "vid", 0x2E8A, "USB vendor ID")
	rootCmd.PersistentFlags().Uint16Var(&product, "pid", 0x000C, "USB product ID")

	cobra.OnInitialize(func() {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	})
}
