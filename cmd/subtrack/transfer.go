package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/smallbiznis/subtrack/internal/importer"
	obscontext "github.com/smallbiznis/subtrack/internal/observability/context"
	"github.com/spf13/cobra"
)

var exportOutput string

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Reconcile subscribers from a CSV file",
	Long: `Import reads a headered CSV file ("-" for stdin) and upserts every row
by customer_no. Rows without a key get a generated placeholder key.

Examples:
  subtrack import subscribers.csv
  cat backup.csv | subtrack import -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, closeIn, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer closeIn()

		var svc *importer.Service
		ctx := obscontext.WithActor(cmd.Context(), "cli", "import")
		return runOneShot(ctx, func(ctx context.Context) error {
			src, err := importer.NewCSVSource(in)
			if err != nil {
				return err
			}
			res, err := svc.Import(ctx, src)
			printImportResult(cmd.OutOrStdout(), res)
			return err
		}, &svc)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every subscriber as CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		var svc *importer.Service
		ctx := obscontext.WithActor(cmd.Context(), "cli", "export")
		return runOneShot(ctx, func(ctx context.Context) error {
			n, err := svc.Export(ctx, importer.NewCSVSink(out))
			if err != nil {
				return err
			}
			if exportOutput != "" && exportOutput != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d subscribers to %s\n", n, exportOutput)
			}
			return nil
		}, &svc)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func printImportResult(w io.Writer, res importer.Result) {
	fmt.Fprintf(w, "inserted: %d\nupdated: %d\nfailed: %d\n", res.Inserted, res.Updated, res.Failed)
	for _, warn := range res.Warnings {
		if warn.Field != "" {
			fmt.Fprintf(w, "row %d: %s %q: %s\n", warn.Row, warn.Field, warn.Value, warn.Message)
			continue
		}
		fmt.Fprintf(w, "row %d: %s\n", warn.Row, warn.Message)
	}
}
