package cmd

import (
	"context"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sarchlab/flashsim/datarecording"
	"github.com/sarchlab/flashsim/simulation"
)

var reportQuery simulation.RecordQuery

var reportCmd = &cobra.Command{
	Use:   "report <file.sqlite3>",
	Short: "Print the reports recorded by a run.",
	Long: "`report` reads a database written by `run --record` and prints " +
		"its execution information, one line per run and the repetition " +
		"reports.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return printReport(cmd.Context(), cmd.OutOrStdout(), reader,
			reportQuery)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	f := reportCmd.Flags()
	f.StringVar(&reportQuery.Hash, "hash", "", "only this run")
	f.StringVar(&reportQuery.Prefix, "prefix", "", "only runs with this prefix")
	f.StringVar(&reportQuery.GC, "gc", "", "only runs of this GC policy")
	f.StringVar(&reportQuery.Pattern, "pattern", "",
		"only runs of this access pattern")
	f.IntVar(&reportQuery.Limit, "limit", 0,
		"maximum number of repetitions to print, 0 prints all")
}

func printReport(
	ctx context.Context,
	w io.Writer,
	reader *datarecording.Reader,
	q simulation.RecordQuery,
) error {
	if err := printExecInfo(ctx, w, reader); err != nil {
		return err
	}

	limit := q.Limit
	q.Limit = 0

	records, total, err := simulation.ReadRecords(ctx, reader, q)
	if err != nil {
		return err
	}

	printRuns(w, simulation.SummarizeRuns(records))

	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Hash", "Rep", "Drive Writes", "GC", "Pattern",
		"Running WAF", "Cumulative WAF"})
	table.SetFooter([]string{"", "", "", "", "",
		"rows", strconv.Itoa(total)})

	for _, r := range records {
		table.Append([]string{
			r.Hash,
			strconv.FormatUint(r.Rep, 10),
			strconv.FormatFloat(r.DriveWrites, 'f', 2, 64),
			r.GC,
			r.Pattern,
			strconv.FormatFloat(r.RunningWAF, 'f', 5, 64),
			strconv.FormatFloat(r.CumulativeWAF, 'f', 5, 64),
		})
	}

	table.Render()

	return nil
}

func printExecInfo(
	ctx context.Context,
	w io.Writer,
	reader *datarecording.Reader,
) error {
	has, err := reader.HasTable(ctx, datarecording.ExecTable)
	if err != nil || !has {
		return err
	}

	infos, _, err := datarecording.Select[datarecording.ExecInfo](
		ctx, reader, datarecording.ExecTable, datarecording.Filter{})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnSeparator(":")
	table.SetBorder(false)

	for _, info := range infos {
		table.Append([]string{info.Property, info.Value})
	}

	table.Render()

	return nil
}

func printRuns(w io.Writer, runs []simulation.RunSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Hash", "Prefix", "GC", "Pattern", "Reps",
		"Mean Running WAF", "Final WAF"})

	for _, run := range runs {
		table.Append([]string{
			run.Hash,
			run.Prefix,
			run.GC,
			run.Pattern,
			strconv.Itoa(run.Reps),
			strconv.FormatFloat(run.MeanRunningWAF, 'f', 5, 64),
			strconv.FormatFloat(run.FinalWAF, 'f', 5, 64),
		})
	}

	table.Render()
}
