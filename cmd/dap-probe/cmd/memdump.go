package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/adiv5"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/adiv5/mem"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/swd"
)

var (
	memApsel byte
	memAddr  uint32
	memLen   int
)

var memDumpCmd = &cobra.Command{
	Use:   "mem-dump",
	Short: "Connect over SWD and dump a range of target memory",
	RunE:  runMemDump,
}

func init() {
	rootCmd.AddCommand(memDumpCmd)
	memDumpCmd.Flags().Uint8Var(&memApsel, "apsel", 0, "AP select index")
	memDumpCmd.Flags().Uint32Var(&memAddr, "addr", 0x20000000, "target memory address")
	memDumpCmd.Flags().IntVar(&memLen, "len", 256, "bytes to dump")
}

func runMemDump(cmd *cobra.Command, args []string) error {
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
	if _, err := dp.Read(ctx, adiv5.RegAbortOrIDCode); err != nil {
		return err
	}

	ap := adiv5.NewAP(dp, memApsel)
	if err := ap.Probe(ctx); err != nil {
		return err
	}

	buf := make([]byte, memLen)
	if err := mem.Read(ctx, ap, buf, memAddr); err != nil {
		return err
	}

	fmt.Print(hex.Dump(buf))
	return nil
}
