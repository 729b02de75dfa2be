package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chebi2gene/internal/core"
	"chebi2gene/internal/identifier"
	"chebi2gene/internal/render"
)

func newReportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report <chebi-id>",
		Short: "Print the gene report of a compound",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, numeric := identifier.NormalizeCompound(args[0])
			if !numeric {
				return fmt.Errorf("%q is not a numeric ChEBI id; try: chebi2gene search %q", args[0], args[0])
			}
			report, err := a.service().Report(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "csv":
				return render.CSV(out, core.ReportRows(report, a.cfg.Links))
			case "json":
				return writeIndented(out, report)
			default:
				return fmt.Errorf("unknown format %q (csv|json)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var extended, asJSON bool
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Search ChEBI by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			result, err := a.service().Search(cmd.Context(), term, extended)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndented(out, result)
			}
			return writeMatches(out, result)
		},
	}
	cmd.Flags().BoolVarP(&extended, "extended", "e", false, "match synonyms as well as names")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeMatches(w io.Writer, result core.SearchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CHEBI\tNAME\tSYNONYMS")
	for _, id := range result.IDs() {
		m := result[id]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", id, strings.Join(m.Names, "; "), strings.Join(m.Synonyms, "; "))
	}
	return tw.Flush()
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
