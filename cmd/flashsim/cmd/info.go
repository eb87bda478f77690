package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sarchlab/flashsim/config"
	"github.com/sarchlab/flashsim/simulation"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the drive a configuration describes.",
	Long: "`info` resolves the configuration and prints the geometry of the " +
		"drive and the size of the run without simulating anything.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return printInfo(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	config.RegisterFlags(infoCmd.Flags())
}

func printInfo(w io.Writer, cfg *config.Config) error {
	s, err := simulation.MakeBuilder().WithConfig(*cfg).Build("SSD")
	if err != nil {
		return err
	}

	dev := s.Device()
	spare := dev.PhysicalPageCount() - dev.LogicalPageCount()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Property", "Value"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"capacity", humanize.IBytes(dev.CapacityBytes())})
	table.Append([]string{"erase block", humanize.IBytes(dev.BlockSizeBytes())})
	table.Append([]string{"page", humanize.IBytes(dev.PageSizeBytes())})
	table.Append([]string{"blocks", humanize.Comma(int64(dev.BlockCount()))})
	table.Append([]string{"pages per block",
		strconv.FormatUint(dev.PagesPerBlock(), 10)})
	table.Append([]string{"physical pages",
		humanize.Comma(int64(dev.PhysicalPageCount()))})
	table.Append([]string{"logical pages",
		humanize.Comma(int64(dev.LogicalPageCount()))})
	table.Append([]string{"spare pages", fmt.Sprintf("%s (%.2f%%)",
		humanize.Comma(int64(spare)),
		100*float64(spare)/float64(dev.PhysicalPageCount()))})
	table.Append([]string{"write buffer pages",
		strconv.FormatUint(dev.WriteBufferCapacity(), 10)})
	table.Append([]string{"policy", s.Policy().Name()})
	table.Append([]string{"pattern", s.Source().Name()})
	table.Append([]string{"writes per repetition",
		humanize.Comma(int64(s.WritesPerRep()))})
	table.Append([]string{"repetitions", humanize.Comma(int64(s.NumReps()))})

	table.Render()

	return nil
}
