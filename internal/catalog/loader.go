package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"pillscan/internal/pillcolor"
	"pillscan/internal/shape"
)

// Spreadsheet column headers, as they appear in the reference workbook.
const (
	colOrder       = "用量排序"
	colGeneric     = "學名"
	colIndications = "適應症"
	colPrecautions = "用藥指示與警語"
	colSideEffects = "副作用"
	colColors      = "顏色"
	colShape       = "形狀"
	colImprint     = "文字"
	colBilling     = "批價碼"
)

var knownColors = func() map[string]struct{} {
	m := map[string]struct{}{}
	for _, l := range []pillcolor.Label{
		pillcolor.White, pillcolor.Black, pillcolor.Gray,
		pillcolor.Red, pillcolor.Orange, pillcolor.Yellow,
		pillcolor.Green, pillcolor.Blue, pillcolor.Purple,
		pillcolor.Pink, pillcolor.Brown, pillcolor.Transparent,
		pillcolor.SkinTone, pillcolor.Other,
	} {
		m[string(l)] = struct{}{}
	}
	return m
}()

var knownShapes = map[string]struct{}{
	string(shape.Circle): {}, string(shape.Oval): {}, string(shape.Other): {},
}

// LoadXLSX reads the reference workbook's first sheet into a Catalog. Rows
// missing a generic name are skipped; unknown color or shape tokens are kept
// but reported in warnings so a catalog typo shows up at startup instead of
// as a silent zero-candidate match.
func LoadXLSX(path string) (*Catalog, []string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("catalog %s: no data rows", path)
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{colGeneric, colColors, colShape, colImprint} {
		if _, ok := col[required]; !ok {
			return nil, nil, fmt.Errorf("catalog %s: missing column %q", path, required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		records  []Record
		warnings []string
	)
	for n, row := range rows[1:] {
		name := cell(row, colGeneric)
		if name == "" {
			continue
		}

		id := RecordID(len(records) + 1)
		if raw := cell(row, colOrder); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				id = RecordID(v)
			}
		}

		rec := Record{
			ID:          id,
			GenericName: name,
			Indications: cell(row, colIndications),
			Precautions: cell(row, colPrecautions),
			SideEffects: cell(row, colSideEffects),
			Shape:       cell(row, colShape),
			Imprint:     ParseImprint(cell(row, colImprint)),
			BillingCode: cell(row, colBilling),
		}
		for _, c := range strings.Split(cell(row, colColors), "|") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			rec.Colors = append(rec.Colors, c)
			if _, ok := knownColors[c]; !ok {
				warnings = append(warnings, fmt.Sprintf("row %d (%s): unknown color %q", n+2, name, c))
			}
		}
		if _, ok := knownShapes[rec.Shape]; !ok && rec.Shape != "" {
			warnings = append(warnings, fmt.Sprintf("row %d (%s): unknown shape %q", n+2, name, rec.Shape))
		}

		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, warnings, fmt.Errorf("catalog %s: every row skipped", path)
	}
	return New(records), warnings, nil
}
