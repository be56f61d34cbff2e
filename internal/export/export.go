// Package export writes result tables as CSV, TSV, Markdown or XLSX.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/dataloom-cli/internal/utils"
)

// ErrFormat is returned for an output extension with no writer.
var ErrFormat = errors.New("unsupported export format")

// Table is a rectangular result with a header row.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// Formats lists the accepted output extensions.
func Formats() []string { return []string{".csv", ".tsv", ".md", ".xlsx"} }

// Write renders tables to path, picking the format from its extension.
// XLSX gets one sheet per table; text formats write the tables one after
// another.
func Write(path string, tables ...*Table) error {
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = writeDelimited(&buf, ',', tables)
	case ".tsv":
		err = writeDelimited(&buf, '\t', tables)
	case ".md":
		for i, t := range tables {
			if i > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(t.Markdown())
		}
	case ".xlsx":
		err = writeXLSX(&buf, tables)
	default:
		return fmt.Errorf("%w: %q (want one of %s)", ErrFormat, filepath.Ext(path), strings.Join(Formats(), ", "))
	}
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func writeDelimited(w io.Writer, comma rune, tables []*Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	for i, t := range tables {
		if i > 0 {
			if err := cw.Write(nil); err != nil {
				return err
			}
		}
		if err := cw.Write(t.Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Markdown renders the table as a GitHub-flavored Markdown table.
func (t *Table) Markdown() string {
	var b strings.Builder
	if t.Title != "" {
		b.WriteString("### ")
		b.WriteString(t.Title)
		b.WriteString("\n\n")
	}
	b.WriteString("| ")
	for i, h := range t.Header {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(cell(h))
	}
	b.WriteString(" |\n|")
	for range t.Header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range t.Rows {
		b.WriteString("| ")
		for i := range t.Header {
			if i > 0 {
				b.WriteString(" | ")
			}
			if i < len(row) {
				b.WriteString(cell(row[i]))
			}
		}
		b.WriteString(" |\n")
	}
	return b.String()
}

func cell(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

func writeXLSX(w io.Writer, tables []*Table) error {
	f := excelize.NewFile()
	defer f.Close()
	for i, t := range tables {
		name := sheetName(t.Title, i)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet: %w", err)
		}
		header := make([]interface{}, len(t.Header))
		for j, h := range t.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for r, row := range t.Rows {
			vals := make([]interface{}, len(row))
			for j, v := range row {
				if x, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(x) && !math.IsInf(x, 0) {
					vals[j] = x
				} else {
					vals[j] = v
				}
			}
			addr, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, addr, &vals); err != nil {
				return fmt.Errorf("write row %d: %w", r+1, err)
			}
		}
	}
	_, err := f.WriteTo(w)
	return err
}

// sheetName derives a valid, unique worksheet name.
func sheetName(title string, i int) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, title)
	if name == "" {
		name = "Sheet"
	}
	suffix := strconv.Itoa(i + 1)
	if len([]rune(name)) > 31-len(suffix)-1 {
		name = string([]rune(name)[:31-len(suffix)-1])
	}
	return name + " " + suffix
}
