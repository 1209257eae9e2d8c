package inventory

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/inventory-bot/internal/api"
)

var sheetHeader = []interface{}{
	"id",
	"name",
	"category",
	"unit",
	"quantity",
}

const (
	colID       = 0
	colQuantity = 4
)

// ExportXLSX выгружает позиции с отображаемым количеством.
func ExportXLSX(entries []Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetRow(sheet, "A1", &sheetHeader); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	row := 2
	for _, e := range entries {
		excelRow := []interface{}{
			e.ID.String(),
			e.Name,
			e.CategoryName(),
			e.UnitSymbol(),
			e.Displayed,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		row++
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// QuantityRow строка загружаемого файла.
type QuantityRow struct {
	Line     int
	ID       api.ID
	Quantity int64
}

var ErrEmptySheet = errors.New("sheet has no data rows")

// RowError строка файла, которую не удалось разобрать.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string { return fmt.Sprintf("строка %d: %s", e.Line, e.Reason) }

// ParseQuantities читает файл в формате ExportXLSX. Строки без id или
// с пустым количеством пропускаются, некорректные попадают в bad.
func ParseQuantities(data []byte) (rows []QuantityRow, bad []RowError, err error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, err
	}
	if len(all) < 2 {
		return nil, nil, ErrEmptySheet
	}
	if len(all[0]) <= colQuantity {
		return nil, nil, fmt.Errorf("ожидается минимум %d колонок (id ... quantity)", colQuantity+1)
	}

	for i := 1; i < len(all); i++ {
		line := i + 1
		r := all[i]
		if len(r) <= colQuantity {
			continue
		}
		id := strings.TrimSpace(r[colID])
		qtyStr := strings.TrimSpace(r[colQuantity])
		if id == "" || qtyStr == "" {
			continue
		}
		qty, err := strconv.ParseInt(qtyStr, 10, 64)
		if err != nil {
			// Excel мог сохранить число как 5.0
			fl, ferr := strconv.ParseFloat(strings.ReplaceAll(qtyStr, ",", "."), 64)
			if ferr != nil || fl != float64(int64(fl)) {
				bad = append(bad, RowError{Line: line, Reason: "количество должно быть целым числом"})
				continue
			}
			qty = int64(fl)
		}
		if qty < 0 {
			bad = append(bad, RowError{Line: line, Reason: "количество не может быть отрицательным"})
			continue
		}
		rows = append(rows, QuantityRow{Line: line, ID: api.ID(id), Quantity: qty})
	}
	return rows, bad, nil
}
