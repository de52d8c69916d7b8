package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/saltamt/internal/chart"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatJSONL = "jsonl"
)

func outputFormat(cmd *cobra.Command) (string, error) {
	f, _ := cmd.Flags().GetString("output")
	switch f {
	case formatTable, formatJSON, formatJSONL:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (table, json, jsonl)", f)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONL writes each item on its own line.
func printJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// dollars formats v as a whole-dollar amount with thousands separators.
func dollars(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "unlimited"
	case math.IsInf(v, -1):
		return "-unlimited"
	}
	s := "$" + humanize.Comma(int64(math.Round(math.Abs(v))))
	if math.Round(v) < 0 {
		return "-" + s
	}
	return s
}

// signedDollars is dollars with an explicit sign on increases.
func signedDollars(v float64) string {
	if math.Round(v) > 0 {
		return "+" + dollars(v)
	}
	return dollars(v)
}

func percent(v float64) string {
	return humanize.FtoaWithDigits(v*100, 1) + "%"
}

func printRows(rows []chart.Row, first string) error {
	tw := newTable()
	fmt.Fprintf(tw, "%s\tBASELINE\tREFORM\tCHANGE\t\n", strings.ToUpper(first))
	for _, r := range rows {
		name := r.Label
		if name == "" {
			name = r.Variable
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", name, dollars(r.Baseline), dollars(r.Reform), signedDollars(r.Change))
	}
	return tw.Flush()
}
