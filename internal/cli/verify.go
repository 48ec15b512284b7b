package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/hupe1980/imbin"
	"github.com/spf13/cobra"
)

// errVerifyFailed is returned when the dataset is inconsistent.
var errVerifyFailed = errors.New("dataset verification failed")

func newVerifyCmd(g *globalOptions) *cobra.Command {
	d := &datasetOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check list and shard counts and duplicate indices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, g, d)
		},
	}
	d.register(cmd)
	return cmd
}

func runVerify(cmd *cobra.Command, g *globalOptions, d *datasetOptions) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	cfg, err := d.load()
	if err != nil {
		return err
	}
	store, err := g.openStore(ctx)
	if err != nil {
		return err
	}

	report, err := imbin.VerifyDataset(ctx, cfg, imbin.WithStore(store), imbin.WithLogger(imbin.NoopLogger()))
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for _, p := range report.Pairs {
		source := "scan"
		if p.FromManifest {
			source = "manifest"
		}
		if p.OK() {
			green.Fprint(w, "  ok       ")
		} else {
			red.Fprint(w, "  mismatch ")
		}
		fmt.Fprintf(w, "%s (%d records) <-> %s (%d objects, %d pages, %s)\n",
			p.List, p.Records, p.Shard, p.Objects, p.Pages, source)
	}

	fmt.Fprintf(w, "\n%d records, %d distinct indices\n", report.Records, report.Distinct)
	if report.DuplicateCount > 0 {
		yellow.Fprintf(w, "%d duplicated indices: %v\n", report.DuplicateCount, report.Duplicates)
	}

	if !report.OK() {
		red.Fprintln(w, "FAILED")
		return errVerifyFailed
	}
	green.Fprintln(w, "OK")
	return nil
}
