package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by values that can be shown as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// Rows is an ad-hoc TableRenderer.
type Rows struct {
	Header []string   `json:"-" yaml:"-"`
	Data   [][]string `json:"rows" yaml:"rows"`
}

// NewRows creates an empty table with the given headers.
func NewRows(headers ...string) *Rows {
	return &Rows{Header: headers}
}

// Add appends one row.
func (r *Rows) Add(cells ...string) { r.Data = append(r.Data, cells) }

func (r *Rows) Headers() []string { return r.Header }
func (r *Rows) Rows() [][]string  { return r.Data }

// Table renders t as a borderless, left-aligned table.
func Table(w io.Writer, t TableRenderer) error {
	tw := newTableWriter(w)
	tw.SetHeader(t.Headers())
	tw.SetAutoFormatHeaders(true)
	tw.AppendBulk(t.Rows())
	tw.Render()
	return nil
}

// KeyValues renders aligned key/value pairs without a header.
func KeyValues(w io.Writer, pairs [][2]string) error {
	tw := newTableWriter(w)
	for _, kv := range pairs {
		tw.Append([]string{kv[0], kv[1]})
	}
	tw.Render()
	return nil
}

func newTableWriter(w io.Writer) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetCenterSeparator("")
	tw.SetColumnSeparator("")
	tw.SetRowSeparator("")
	tw.SetHeaderLine(false)
	tw.SetBorder(false)
	tw.SetTablePadding("  ")
	tw.SetNoWhiteSpace(true)
	return tw
}
