package health

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

const (
	doubleRule = "══════════════════════════════════════════════════"
	singleRule = "──────────────────────────────────────────────────"
)

// Render prints the categorized report tables to w
func Render(w io.Writer, r *contracts.HealthReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleRule)
	fmt.Fprintf(w, "  Data Health Check Summary (%d instruments checked)\n", r.Checked)
	fmt.Fprintln(w, doubleRule)
	fmt.Fprintln(w)

	if r.Clean() {
		fmt.Fprintln(w, "✅ All checks passed. No issues found.")
		return
	}

	if len(r.MissingData) > 0 {
		fmt.Fprintln(w, "⚠️  Found missing data points:")
		var rows [][]string
		for _, code := range contracts.SortedCodes(r.MissingData) {
			cols := r.MissingData[code]
			names := make([]string, 0, len(cols))
			for col := range cols {
				names = append(names, col)
			}
			sort.Strings(names)
			for _, col := range names {
				rows = append(rows, []string{code, col, cols[col].String()})
			}
		}
		table(w, []string{"instrument", "column", "missing_count"}, rows)
	}

	if len(r.LargeSteps) > 0 {
		fmt.Fprintln(w, "⚠️  Found large step changes:")
		var rows [][]string
		for _, code := range contracts.SortedCodes(r.LargeSteps) {
			for _, s := range r.LargeSteps[code] {
				rows = append(rows, []string{code, s.Column, s.FirstDate.Format(contracts.DateLayout), fmt.Sprintf("%.6f", s.MaxChange)})
			}
		}
		table(w, []string{"instrument", "col_name", "date", "pct_change"}, rows)
	}

	if len(r.MissingColumns) > 0 {
		fmt.Fprintln(w, "⚠️  Found missing required columns (OHLCV):")
		var rows [][]string
		for _, code := range contracts.SortedCodes(r.MissingColumns) {
			rows = append(rows, []string{code, strings.Join(r.MissingColumns[code], ", ")})
		}
		table(w, []string{"instrument", "missing_columns"}, rows)
	}

	if len(r.MissingFactor) > 0 {
		fmt.Fprintln(w, "⚠️  Found missing factor data:")
		var rows [][]string
		for _, code := range contracts.SortedCodes(r.MissingFactor) {
			rows = append(rows, []string{code, r.MissingFactor[code]})
		}
		table(w, []string{"instrument", "reason"}, rows)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "❌ Encountered errors during checking:")
		var rows [][]string
		for _, code := range contracts.SortedCodes(r.Errors) {
			rows = append(rows, []string{code, r.Errors[code]})
		}
		table(w, []string{"instrument", "error"}, rows)
	}
}

// table prints left-aligned columns sized to their widest cell
func table(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		for i, cell := range cells {
			if i < len(cells)-1 {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			} else {
				fmt.Fprint(w, cell)
			}
		}
		fmt.Fprintln(w)
	}

	printRow(header)
	for _, row := range rows {
		printRow(row)
	}
	fmt.Fprintln(w, singleRule)
}
