// Package render formats frames, plans and byte coverage for the terminal.
package render

import (
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/value"
)

// Cell placeholders for cells that have no value to show
const (
	Pending     = "…"
	Unavailable = "-"
	Failed      = "!"
)

// Grid is a rendered window of a frame: a row-number column followed by
// the requested columns.
type Grid struct {
	Header []string
	Rows   [][]string
	Values []map[string]interface{} // resolved values by column, for JSON
}

// Snapshot reads [start, end) of frame from its cache without fetching.
func Snapshot(frame dataframe.Frame, start, end int, columns []string) (*Grid, error) {
	if end > frame.NumRows() {
		end = frame.NumRows()
	}
	g := &Grid{Header: append([]string{"#"}, columns...)}
	for r := start; r < end; r++ {
		line := make([]string, 0, len(columns)+1)
		vals := make(map[string]interface{}, len(columns)+1)

		num, ok, err := frame.GetRowNumber(r)
		if err != nil {
			return nil, err
		}
		switch {
		case !ok:
			line = append(line, Pending)
		case num.Unavailable:
			line = append(line, Unavailable)
		default:
			n, _ := num.Int()
			line = append(line, strconv.Itoa(n+1))
			vals["#"] = n
		}

		for _, c := range columns {
			e, err := frame.Entry(r, c)
			if err != nil {
				return nil, err
			}
			line = append(line, cellText(e))
			if e.State == dataframe.StateResolved && !e.Value.Unavailable {
				vals[c] = e.Value.Value
			}
		}
		g.Rows = append(g.Rows, line)
		g.Values = append(g.Values, vals)
	}
	return g, nil
}

func cellText(e dataframe.Entry) string {
	switch e.State {
	case dataframe.StateResolved:
		if e.Value.Unavailable {
			return Unavailable
		}
		return value.Format(e.Value.Value)
	case dataframe.StateFailed:
		return Failed
	default:
		return Pending
	}
}

// Table writes the grid as an ASCII table.
func Table(w io.Writer, g *Grid) {
	t := tablewriter.NewWriter(w)
	t.SetHeader(g.Header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.AppendBulk(g.Rows)
	t.Render()
}

// JSON writes the grid values as a JSON array of objects. Cells without a
// value are omitted.
func JSON(w io.Writer, g *Grid) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	out := g.Values
	if out == nil {
		out = []map[string]interface{}{}
	}
	return enc.Encode(out)
}

// Write renders g in the named format: table or json.
func Write(w io.Writer, g *Grid, format string) error {
	switch format {
	case "", "table":
		Table(w, g)
		return nil
	case "json":
		return JSON(w, g)
	}
	return fmt.Errorf("unknown format %q", format)
}

// KeyValues writes two-column rows under a header.
func KeyValues(w io.Writer, header [2]string, rows [][2]string) {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header[:])
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	for _, r := range rows {
		t.Append(r[:])
	}
	t.Render()
}
