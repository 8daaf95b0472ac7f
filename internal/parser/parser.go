// Package parser converts uploaded order, purchase and logistics files into
// typed candidate records with per-row validation outcomes.
//
// Parsing is best-effort: malformed rows become RowErrors and never abort
// the file. Only structural problems fail the whole call (wrong format,
// unreadable encoding, missing header, too many rows).
package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/xuri/excelize/v2"
)

const (
	// MaxHeaderSearchRows bounds how far down the header row may appear.
	MaxHeaderSearchRows = 20

	// DefaultMaxRows is the row ceiling when Options.MaxRows is unset.
	DefaultMaxRows = 50000

	// contextCheckInterval is how many rows are read between ctx checks.
	contextCheckInterval = 1000
)

// Format is the detected container format of an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Options configures a Parser.
type Options struct {
	MaxRows          int
	FallbackEncoding string
}

// Parser is stateless apart from its options and safe for concurrent use.
type Parser struct {
	opts      Options
	validator *recordValidator
}

// New creates a Parser.
func New(opts Options) *Parser {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.FallbackEncoding == "" {
		opts.FallbackEncoding = EncodingGB18030
	}
	return &Parser{opts: opts, validator: newRecordValidator()}
}

// Result is the ordered row-by-row outcome of one file.
type Result struct {
	Kind     core.Kind
	FileName string
	Format   Format
	Bytes    int64
	Rows     []core.RowOutcome
}

// Total is the number of non-empty data rows.
func (r *Result) Total() int { return len(r.Rows) }

// ValidCount is the number of rows that produced a record.
func (r *Result) ValidCount() int {
	n := 0
	for _, o := range r.Rows {
		if o.Valid() {
			n++
		}
	}
	return n
}

// InvalidCount is the number of rows with at least one error.
func (r *Result) InvalidCount() int { return r.Total() - r.ValidCount() }

// Errors flattens every row error in row order.
func (r *Result) Errors() []core.RowError {
	var out []core.RowError
	for _, o := range r.Rows {
		out = append(out, o.Errors...)
	}
	return out
}

// Records returns the candidate records of valid rows in file order.
func (r *Result) Records() []core.Record {
	out := make([]core.Record, 0, len(r.Rows))
	for _, o := range r.Rows {
		if o.Valid() {
			out = append(out, o.Record)
		}
	}
	return out
}

// rowSource yields raw rows with their 1-based physical line; io.EOF marks
// the end.
type rowSource interface {
	Next() ([]string, int, error)
	Close() error
}

// Parse reads a file of the given kind. The reader is consumed but not
// closed.
func (p *Parser) Parse(ctx context.Context, kind core.Kind, fileName string, r io.Reader) (*Result, error) {
	layout, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}

	counter := &countingReader{reader: r}
	src, format, err := p.open(counter, fileName)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	res := &Result{Kind: kind, FileName: fileName, Format: format}
	if err := p.readRows(ctx, layout, src, res); err != nil {
		return nil, err
	}
	res.Bytes = counter.BytesRead
	return res, nil
}

// open detects the container format from the extension, falling back to
// the ZIP signature for extensionless uploads.
func (p *Parser) open(r io.Reader, fileName string) (rowSource, Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".xlsx", ".xlsm":
		src, err := openXLSX(r)
		return src, FormatXLSX, err
	case ".csv", ".txt", ".tsv":
		src, err := p.openCSV(r, ext == ".tsv")
		return src, FormatCSV, err
	case "":
		var head [4]byte
		n, err := io.ReadFull(r, head[:])
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, "", fmt.Errorf("%w: %v", core.ErrMalformedFile, err)
		}
		r = io.MultiReader(bytes.NewReader(head[:n]), r)
		if n == 4 && bytes.Equal(head[:], []byte("PK\x03\x04")) {
			src, err := openXLSX(r)
			return src, FormatXLSX, err
		}
		src, err := p.openCSV(r, false)
		return src, FormatCSV, err
	}
	return nil, "", fmt.Errorf("%w: unsupported file type %q", core.ErrMalformedFile, ext)
}

type csvSource struct {
	reader *csv.Reader
}

func (p *Parser) openCSV(r io.Reader, tabs bool) (rowSource, error) {
	decoded, err := decodeStream(r, p.opts.FallbackEncoding)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	if tabs {
		cr.Comma = '\t'
	}
	return &csvSource{reader: cr}, nil
}

func (s *csvSource) Next() ([]string, int, error) {
	rec, err := s.reader.Read()
	if err == io.EOF {
		return nil, 0, err
	}
	if err != nil {
		if errors.Is(err, core.ErrMalformedFile) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: invalid csv: %v", core.ErrMalformedFile, err)
	}
	line, _ := s.reader.FieldPos(0)
	return rec, line, nil
}

func (s *csvSource) Close() error { return nil }

type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
	line int
}

// openXLSX reads the first worksheet. The archive needs random access, so
// the workbook is loaded whole; the HTTP layer caps upload size.
func openXLSX(r io.Reader) (rowSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid xlsx: %v", core.ErrMalformedFile, err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: workbook has no sheets", core.ErrMalformedFile)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read sheet %q: %v", core.ErrMalformedFile, sheets[0], err)
	}
	return &xlsxSource{file: f, rows: rows}, nil
}

func (s *xlsxSource) Next() ([]string, int, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", core.ErrMalformedFile, err)
		}
		return nil, 0, io.EOF
	}
	s.line++
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", core.ErrMalformedFile, err)
	}
	return cols, s.line, nil
}

func (s *xlsxSource) Close() error {
	if err := s.rows.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// readRows locates the header and converts every following non-empty row.
func (p *Parser) readRows(ctx context.Context, layout Layout, src rowSource, res *Result) error {
	index, err := p.findHeader(layout, src)
	if err != nil {
		return err
	}

	specs := make(map[string]FieldSpec, len(layout.Fields))
	for _, f := range layout.Fields {
		specs[f.Name] = f
	}

	seen := make(map[string]int)
	for read := 1; ; read++ {
		raw, line, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if read%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if isEmptyRow(raw) {
			continue
		}
		if len(res.Rows) >= p.opts.MaxRows {
			return fmt.Errorf("%w: more than %d data rows", core.ErrTooManyRows, p.opts.MaxRows)
		}

		res.Rows = append(res.Rows, p.buildRow(layout, raw, line, index, specs, seen))
	}

	if len(res.Rows) == 0 {
		return fmt.Errorf("%w: empty file, no data rows after header", core.ErrMalformedFile)
	}
	return nil
}

func (p *Parser) buildRow(layout Layout, raw []string, line int, index headerIndex, specs map[string]FieldSpec, seen map[string]int) core.RowOutcome {
	row := &Row{Number: line, cells: raw, index: index, fields: specs}
	rec := layout.Build(row)
	p.validator.check(row, rec)

	if len(row.errs) == 0 {
		if first, dup := seen[rec.Key()]; dup {
			row.fail("id", fmt.Sprintf("duplicate identifier %q, first seen on row %d", rec.Key(), first))
		} else {
			seen[rec.Key()] = line
		}
	}

	if len(row.errs) > 0 {
		return core.RowOutcome{Row: line, Errors: row.errs}
	}
	return core.RowOutcome{Row: line, Record: rec}
}

// findHeader scans the first rows for one that names every required field.
func (p *Parser) findHeader(layout Layout, src rowSource) (headerIndex, error) {
	var bestMissing []string
	for i := 0; i < MaxHeaderSearchRows; i++ {
		raw, _, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isEmptyRow(raw) {
			continue
		}

		index, missing := layout.matchHeader(raw)
		if len(missing) == 0 {
			return index, nil
		}
		if bestMissing == nil || len(missing) < len(bestMissing) {
			bestMissing = missing
		}
	}

	if bestMissing == nil {
		return nil, fmt.Errorf("%w: empty file", core.ErrMalformedFile)
	}
	return nil, fmt.Errorf("%w: missing required column(s): %s",
		core.ErrMalformedFile, strings.Join(bestMissing, ", "))
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
