package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/ajitpratap0/gridframe/pkg/byterange"
	"github.com/ajitpratap0/gridframe/pkg/parquetsource"
)

var statusGlyph = map[byterange.Status]string{
	byterange.StatusCovered: "█",
	byterange.StatusPartial: "▒",
	byterange.StatusPending: "·",
}

// CoverageGrid draws one line per row group and one glyph per column chunk:
// █ downloaded, ▒ partly downloaded, · not downloaded.
func CoverageGrid(w io.Writer, columns []string, chunks []parquetsource.Chunk) {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}

	var lines [][]string
	for _, ch := range chunks {
		for len(lines) <= ch.RowGroup {
			line := make([]string, len(columns))
			for i := range line {
				line[i] = " "
			}
			lines = append(lines, line)
		}
		if i, ok := pos[ch.Column]; ok {
			lines[ch.RowGroup][i] = statusGlyph[ch.Status]
		}
	}

	width := len(fmt.Sprint(len(lines)))
	for i, line := range lines {
		fmt.Fprintf(w, "rg %*d │%s│\n", width, i, strings.Join(line, ""))
	}
}

// Chunks writes the column chunk layout with byte ranges and status.
func Chunks(w io.Writer, chunks []parquetsource.Chunk) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"row group", "column", "bytes", "size", "codec", "values", "status"})
	t.SetAutoFormatHeaders(false)
	for _, c := range chunks {
		t.Append([]string{
			fmt.Sprint(c.RowGroup),
			c.Column,
			c.Bytes.String(),
			Bytes(c.Bytes.Len()),
			c.Compression,
			fmt.Sprint(c.NumValues),
			c.Status.String(),
		})
	}
	t.Render()
}

// Bytes formats a byte count with a binary unit.
func Bytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
