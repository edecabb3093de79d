// Package export renders tabular circulation data as CSV or PDF.
package export

// Dataset defines tabular export content. Rows are positional and must match
// the header order.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}
