// Package manifest renders a scheduled day as an XLSX workbook, one sheet
// per driver in visiting order.
package manifest

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"hiberry/internal/model"
	"hiberry/internal/planner"
)

// ContentType is the MIME type of the rendered workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const unassignedSheet = "Unassigned"

var header = []string{
	"Window", "Sequence", "Order ID", "Client", "Address", "Phone",
	"Latitude", "Longitude", "Total", "Payment", "Status", "Notes",
}

var columnWidths = []float64{14, 10, 38, 24, 40, 16, 12, 12, 10, 12, 12, 30}

// SheetName is the sheet holding a driver's stops.
func SheetName(driver int) string {
	if driver == 0 {
		return unassignedSheet
	}
	return fmt.Sprintf("Driver %d", driver)
}

// Build renders orders of date. Every known driver gets a sheet, orders
// without a driver go to an extra Unassigned sheet.
func Build(date model.Date, orders []model.Order) ([]byte, error) {
	byDriver := map[int][]model.Order{}
	for _, o := range orders {
		byDriver[o.Driver] = append(byDriver[o.Driver], o)
	}
	drivers := append([]int(nil), planner.Drivers...)
	if len(byDriver[0]) > 0 {
		drivers = append(drivers, 0)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for _, d := range drivers {
		name := SheetName(d)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, headerStyle, sortStops(byDriver[d])); err != nil {
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}
	f.SetActiveSheet(0)
	if err := f.SetDocProps(&excelize.DocProperties{Title: "Delivery manifest " + date.String(), Creator: "hiberry"}); err != nil {
		return nil, fmt.Errorf("set properties: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, orders []model.Order) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header of %s: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header of %s: %w", sheet, err)
	}
	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set width of %s: %w", sheet, err)
		}
	}

	for i, o := range orders {
		row := []any{
			string(o.DeliveryWindow), "", o.ID, o.ClientName, o.DeliveryAddress, o.PhoneNumber,
			"", "", o.TotalAmount, o.PaymentMethod, string(o.Status), o.Notes,
		}
		if o.Sequence != nil {
			// 1-based for the driver's printout
			row[1] = *o.Sequence + 1
		}
		if o.Location != nil {
			row[6] = o.Location.Latitude
			row[7] = o.Location.Longitude
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+2, sheet, err)
		}
	}
	return nil
}

// sortStops orders by window, then sequence (unsequenced last), then id.
func sortStops(orders []model.Order) []model.Order {
	out := append([]model.Order(nil), orders...)
	windowRank := func(w model.DeliveryWindow) int {
		for i, v := range model.Windows {
			if v == w {
				return i
			}
		}
		return len(model.Windows)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := windowRank(a.DeliveryWindow), windowRank(b.DeliveryWindow); ra != rb {
			return ra < rb
		}
		switch {
		case a.Sequence != nil && b.Sequence != nil && *a.Sequence != *b.Sequence:
			return *a.Sequence < *b.Sequence
		case a.Sequence != nil && b.Sequence == nil:
			return true
		case a.Sequence == nil && b.Sequence != nil:
			return false
		}
		return a.ID < b.ID
	})
	return out
}
