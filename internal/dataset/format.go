package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupported indicates a file extension no reader handles.
var ErrUnsupported = errors.New("unsupported table format")

// ReadOptions tune how raw records are read.
type ReadOptions struct {
	// Delimiter overrides the separator of delimited text. 0 picks by extension.
	Delimiter rune
	// Sheet selects an xlsx worksheet by name; empty means the first sheet.
	Sheet string
}

// Reader turns a file into raw string records.
type Reader interface {
	CanRead(path string) bool
	Read(path string, opt ReadOptions) ([][]string, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(delimitedReader{})
	Register(xlsxReader{})
}

// ReadRecords selects a reader by file extension and returns its records.
func ReadRecords(path string, opt ReadOptions) ([][]string, error) {
	for _, r := range registry {
		if r.CanRead(path) {
			return r.Read(path, opt)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

type delimitedReader struct{}

func (delimitedReader) CanRead(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt", ".data":
		return true
	}
	return false
}

func (delimitedReader) Read(path string, opt ReadOptions) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = opt.Delimiter
	if r.Comma == 0 {
		r.Comma = sniffDelimiter(path)
	}
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(recs) > 0 && len(recs[0]) > 0 {
		recs[0][0] = strings.TrimPrefix(recs[0][0], "\ufeff")
	}
	return recs, nil
}

func sniffDelimiter(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

type xlsxReader struct{}

func (xlsxReader) CanRead(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func (xlsxReader) Read(path string, opt ReadOptions) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx %s has no sheets", filepath.Base(path))
	}
	sheet := sheets[0]
	if opt.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, fmt.Errorf("sheet '%s' not found in workbook '%s'.\nAvailable sheets: %s",
				opt.Sheet, filepath.Base(path), strings.Join(sheets, ", "))
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}
