package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/adiv5"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/swd"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/idcode"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/idcode/deviceinfo"
)

var swdReadCmd = &cobra.Command{
	Use:   "swd-read",
	Short: "Connect over SWD and read the target's DPIDR",
	RunE:  runSWDRead,
}

func init() {
	rootCmd.AddCommand(swdReadCmd)
}

func runSWDRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := openProbe(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if _, err := p.Connect(ctx, cmsisdap.PortSWD); err != nil {
		return err
	}

	session := swd.NewSession(p)
	if err := session.LineReset(ctx); err != nil {
		return err
	}

	dp := adiv5.NewSWDDP(p, p.Quirks, session, adiv5.DPv1, log.WithField("component", "adiv5.DP"))
	raw, err := dp.Read(ctx, adiv5.RegAbortOrIDCode)
	if err != nil {
		return err
	}

	id := idcode.ParseIDCode(raw)
	mfr, _ := idcode.LookupManufacturer(id.ManufacturerCode)
	fmt.Printf("DPIDR:        0x%08X\n", raw)
	fmt.Printf("Version:      DPv%d\n", (raw>>12)&0xF)
	fmt.Printf("Part number:  0x%04X\n", id.PartNumber)
	fmt.Printf("Designer:     %s (0x%03X)\n", mfr.Name, mfr.Code)
	if info := deviceinfo.Lookup(raw); info.Name != "Unknown device" {
		fmt.Printf("Device:       %s (%s)\n", info.Name, info.Description)
	}
	if session.BrokenSequenceQuirkLatched() {
		fmt.Println("note: BROKEN_SWD_SEQUENCE correction fired on this read")
	}
	return nil
}
