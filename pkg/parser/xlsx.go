package parser

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/logprune/internal/model"
	"github.com/logflow/logprune/internal/pool"
	lperrors "github.com/logflow/logprune/pkg/errors"
)

// excelEpoch is day zero of Excel serial dates, accounting for the 1900 leap year bug.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// XLSXParser parses one sheet of an Excel workbook. The first row is the header.
type XLSXParser struct {
	cfg Config
}

// NewXLSXParser creates a new XLSX parser.
func NewXLSXParser(cfg Config) *XLSXParser {
	return &XLSXParser{cfg: cfg}
}

// Parse reads the workbook from r and sends one event per data row.
// Rows without a case ID are skipped.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return parseError("xlsx", 0, err)
	}
	defer xl.Close()

	sheet := p.cfg.Sheet
	if sheet == "" {
		sheet = xl.GetSheetName(0)
	}
	if sheet == "" {
		return parseError("xlsx", 0, fmt.Errorf("no sheets in workbook"))
	}

	rows, err := xl.Rows(sheet)
	if err != nil {
		return parseError("xlsx", 0, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return parseError("xlsx", 1, ErrEmptyInput)
	}
	header, err := rows.Columns()
	if err != nil {
		return parseError("xlsx", 1, err)
	}
	cols, err := ResolveColumns(header, p.cfg)
	if err != nil {
		return err
	}

	rowNum := 1
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return lperrors.ContextCanceled("parse", err)
		}
		rowNum++

		cells, err := rows.Columns()
		if err != nil {
			return parseError("xlsx", rowNum, err)
		}
		caseID := field(cells, cols.CaseID)
		if caseID == "" {
			continue
		}

		event := pool.Events.Get()
		event.Position = rowNum
		event.CaseID = append(event.CaseID[:0], caseID...)
		event.Activity = append(event.Activity[:0], field(cells, cols.Activity)...)
		event.Resource = append(event.Resource[:0], field(cells, cols.Resource)...)
		if ts, err := p.parseTimestamp(field(cells, cols.Timestamp)); err == nil {
			event.Timestamp = ts
		}

		if err := send(ctx, out, event); err != nil {
			return err
		}
	}
	return rows.Error()
}

// parseTimestamp accepts Excel serial dates and the text layouts of ParseTimestamp.
func (p *XLSXParser) parseTimestamp(s string) (int64, error) {
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 1 {
		d := time.Duration(serial * float64(24*time.Hour))
		return excelEpoch.Add(d).UnixNano(), nil
	}
	return ParseTimestamp(s, p.cfg.TimestampFormat)
}
