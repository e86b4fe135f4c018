package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Open the probe and print its DAP_Info identity and quirks",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func openProbe(ctx context.Context) (*dap.Probe, error) {
	t, err := dap.OpenHID(vendor, product)
	if err != nil {
		return nil, err
	}
	return dap.Open(ctx, t, log)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	p, err := openProbe(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("Vendor:       %s\n", p.Info.Vendor)
	fmt.Printf("Product:      %s\n", p.Info.Product)
	fmt.Printf("Serial:       %s\n", p.Info.Serial)
	fmt.Printf("Firmware:     %s\n", p.Info.Firmware)
	fmt.Printf("Packet size:  %d\n", p.Info.PacketSize)
	fmt.Printf("Packet count: %d\n", p.Info.PacketCount)
	fmt.Printf("Capabilities: 0x%04x\n", p.Info.Capabilities)
	fmt.Printf("Quirks:       %s\n", p.Quirks.String())
	return nil
}
