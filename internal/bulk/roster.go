package bulk

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// maxRosterRows caps how many rows one import may carry.
const maxRosterRows = 10000

// Column maps a spreadsheet header to a draft field. Date columns are
// normalized to the wire date format, including Excel serial dates.
type Column struct {
	Field string
	Date  bool
}

// Mapping keys are normalized (lowercased, trimmed) header cells. Headers
// without a mapping entry are ignored.
type Mapping map[string]Column

// Row is one imported roster entry, ready to seed a wizard draft.
type Row struct {
	// Line is the 1-based spreadsheet row number, for error reporting.
	Line   int
	Fields map[string]any
}

// ReadRoster parses a roster spreadsheet into per-row draft field maps. The
// first row must be the header row. Legacy .xls files are read with the xls
// package; everything else goes through excelize.
func ReadRoster(r io.Reader, filename string, mapping Mapping) ([]Row, error) {
	if len(mapping) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty roster mapping")
	}

	cells, err := readRows(r, filename)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"could not read spreadsheet").WithCause(err)
	}
	if len(cells) < 2 {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"spreadsheet has no data rows")
	}
	if len(cells)-1 > maxRosterRows {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"spreadsheet exceeds %d rows", maxRosterRows)
	}

	// Resolve header positions once.
	type boundColumn struct {
		idx int
		col Column
	}
	var columns []boundColumn
	for idx, header := range cells[0] {
		if col, ok := mapping[normalizeHeader(header)]; ok {
			columns = append(columns, boundColumn{idx: idx, col: col})
		}
	}
	if len(columns) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"no mapped columns found in header row")
	}

	var rows []Row
	for i, raw := range cells[1:] {
		fields := make(map[string]any, len(columns))
		for _, bc := range columns {
			value := cellValue(raw, bc.idx)
			if value == "" {
				continue
			}
			if bc.col.Date {
				if normalized, ok := normalizeDateCell(value); ok {
					value = normalized
				}
			}
			fields[bc.col.Field] = value
		}
		if len(fields) == 0 {
			continue
		}
		rows = append(rows, Row{Line: i + 2, Fields: fields})
	}
	return rows, nil
}

func readRows(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows := workbook.ReadAllCells(maxRosterRows + 1)
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	default:
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	}
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// normalizeDateCell converts common spreadsheet date representations to the
// wire format. Excel serial dates are kept to a realistic range so plain
// years are not misread as serials.
func normalizeDateCell(value string) (string, bool) {
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial >= 20000 && serial <= 80000 {
			if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return parsed.Format("2006-01-02"), true
			}
		}
		return "", false
	}

	if _, err := schema.ParseCalendarDate(value); err == nil {
		return value, true
	}

	formats := []string{
		"1/2/2006",
		"01/02/2006",
		"2/1/2006",
		"2006/01/02",
		"Jan 2, 2006",
		"2 Jan 2006",
	}
	for _, layout := range formats {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("2006-01-02"), true
		}
	}
	return "", false
}
