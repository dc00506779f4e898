package export

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/ocr"
)

// Sheet is the name of the worksheet holding the results.
const Sheet = "Results"

// ResultsXLSX returns a workbook with one row per image: the file name,
// the engine, one column per schema label and the error, if any.
func ResultsXLSX(results []ocr.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if index, _ := f.GetSheetIndex(Sheet); index == -1 {
		if _, err := f.NewSheet(Sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, err := f.GetSheetIndex(Sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(activeIndex)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("xlsx delete default sheet: %w", err)
	}

	headers := append([]string{"Image", "Engine"}, certificate.Labels...)
	headers = append(headers, "Error")
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(Sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for r, res := range results {
		row := r + 2
		values := []string{filepath.Base(res.Image), res.Engine}
		for _, label := range certificate.Labels {
			values = append(values, res.Fields[label])
		}
		values = append(values, res.Error)
		for col, v := range values {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			// Text cells keep dates and IDs exactly as recognised.
			if err := f.SetCellStr(Sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	widths := []struct {
		from, to string
		width    float64
	}{
		{"A", "B", 24},
		{"C", "J", 18},
		{"K", "K", 48},
	}
	for _, w := range widths {
		if err := f.SetColWidth(Sheet, w.from, w.to, w.width); err != nil {
			return nil, fmt.Errorf("xlsx column width %s:%s: %w", w.from, w.to, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
