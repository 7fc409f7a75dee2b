package reports

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/goodsin-backend/internal/deliveries"
)

const (
	summarySheet = "Summary"
	linesSheet   = "Discrepancies"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var lineHeaders = []string{
	"SKU",
	"Description",
	"Quantity Type",
	"Status",
	"Ordered Units",
	"Received Units",
	"Variance Units",
	"Case Units",
	"Unit Cost",
	"Expected Cost",
	"Received Cost",
	"Tax Rate",
	"Recommended Tax Rate",
	"Deposit Scheme Review",
	"New Product",
	"Barcode Lookup Error",
}

// DiscrepancyFilename is the attachment name used for exported workbooks.
func DiscrepancyFilename(report deliveries.DiscrepancyReport) string {
	number := strings.TrimSpace(report.Delivery.DeliveryNumber)
	if number == "" {
		number = report.Delivery.ID.String()
	}
	number = strings.NewReplacer("/", "-", "\\", "-", " ", "_", "\"", "").Replace(number)
	return fmt.Sprintf("delivery-%s-discrepancies.xlsx", number)
}

// WriteDiscrepancyWorkbook renders the report and streams the xlsx bytes to w.
func WriteDiscrepancyWorkbook(w io.Writer, report deliveries.DiscrepancyReport) error {
	f, err := BuildDiscrepancyWorkbook(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// BuildDiscrepancyWorkbook lays the report out as a summary sheet followed by
// one row per flagged line.
func BuildDiscrepancyWorkbook(report deliveries.DiscrepancyReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(linesSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#8EA9DB", Style: 1},
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := writeSummary(f, report, headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeLines(f, report.Lines, headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeSummary(f *excelize.File, report deliveries.DiscrepancyReport, headerStyle int) error {
	d := report.Delivery
	completion := 0.0
	if d.CompletionPercentage != nil {
		completion = *d.CompletionPercentage
	}
	rows := [][]any{
		{"Delivery Number", d.DeliveryNumber},
		{"Delivery ID", d.ID.String()},
		{"Supplier ID", d.SupplierID.String()},
		{"Delivery Date", d.DeliveryDate.Format("2006-01-02")},
		{"Status", string(d.Status)},
		{"Total Expected", d.TotalExpected.InexactFloat64()},
		{"Total Received", d.TotalReceived.InexactFloat64()},
		{"Completion %", completion},
		{"Flagged Lines", len(report.Lines)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

func writeLines(f *excelize.File, lines []deliveries.ItemView, headerStyle int) error {
	header := make([]any, len(lineHeaders))
	for i, h := range lineHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(linesSheet, "A1", &header); err != nil {
		return fmt.Errorf("header row: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(lineHeaders))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(linesSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	for i, line := range lines {
		lookupErr := ""
		if line.BarcodeRetrievalError != nil {
			lookupErr = *line.BarcodeRetrievalError
		}
		row := []any{
			line.SKU,
			line.Description,
			string(line.QuantityType),
			string(line.Status),
			line.TotalOrderedUnits,
			line.TotalReceivedUnits,
			line.TotalReceivedUnits - line.TotalOrderedUnits,
			line.EffectiveCaseUnits,
			line.UnitCost.InexactFloat64(),
			line.ExpectedCost.InexactFloat64(),
			line.ReceivedCost.InexactFloat64(),
			line.TaxRate.InexactFloat64(),
			line.RecommendedTaxRate.InexactFloat64(),
			yesNo(line.PotentialDepositScheme),
			yesNo(line.IsNewProduct),
			lookupErr,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(linesSheet, cell, &row); err != nil {
			return fmt.Errorf("line row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(linesSheet, "A", "B", 28); err != nil {
		return err
	}
	return f.SetPanes(linesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
