package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/adiv5"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/idcode/deviceinfo"
)

var jtagScanTAPs int

var jtagScanCmd = &cobra.Command{
	Use:   "jtag-scan",
	Short: "Connect over JTAG and walk the scan chain's IDCODEs",
	RunE:  runJTAGScan,
}

func init() {
	rootCmd.AddCommand(jtagScanCmd)
	jtagScanCmd.Flags().IntVar(&jtagScanTAPs, "taps", 1, "number of TAPs on the scan chain")
}

func runJTAGScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := openProbe(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if _, err := p.Connect(ctx, cmsisdap.PortJTAG); err != nil {
		return err
	}

	codes, err := adiv5.ScanJTAGChain(ctx, p, jtagScanTAPs)
	if err != nil {
		return err
	}

	for i, id := range codes {
		fmt.Printf("TAP %d: IDCODE 0x%08X\n", i, id.Raw)
		if !id.HasIDCode {
			fmt.Println("       (bypass, no IDCODE bit set)")
			continue
		}
		info := deviceinfo.Lookup(id.Raw)
		if info.Name != "Unknown device" {
			fmt.Printf("       %s (%s)\n", info.Name, info.Description)
		}
	}
	return nil
}
