package interfaces

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	merge "credit-merge/internal/merge/domain"
)

// BuildOperationsPDF renders a merge-operation history report.
func BuildOperationsPDF(summary merge.OperationSummary, operations []*merge.MergeOperation) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Credit Merge Operations")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Successful operations: %d", summary.Operations))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records merged: %d", summary.MergedRecords))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Amount consolidated: %s", summary.TotalAmount.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(38, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Account", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Strategy", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Threshold", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Before", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "After", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Merged", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Dry run", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, op := range operations {
		pdf.CellFormat(38, 6, op.OperationTime.Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, op.AccountID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(op.Strategy), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, op.MinAmountThreshold.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%d", op.RecordsBefore), "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%d", op.RecordsAfter), "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%d", op.MergedRecords), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, op.TotalAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, string(op.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%t", op.IsDryRun), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildOperationsXLSX renders the same report as a workbook.
func BuildOperationsXLSX(summary merge.OperationSummary, operations []*merge.MergeOperation) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	operationsSheet := "operations"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(operationsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Credit Merge Operations")
	_ = f.SetCellValue(summarySheet, "A3", "Successful operations")
	_ = f.SetCellValue(summarySheet, "B3", summary.Operations)
	_ = f.SetCellValue(summarySheet, "A4", "Records merged")
	_ = f.SetCellValue(summarySheet, "B4", summary.MergedRecords)
	_ = f.SetCellValue(summarySheet, "A5", "Amount consolidated")
	_ = f.SetCellValue(summarySheet, "B5", summary.TotalAmount.StringFixed(2))

	headers := []string{"Time", "Account", "Strategy", "Threshold", "Before", "After", "Merged", "Amount", "Status", "Dry run", "Message"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(operationsSheet, cell, header)
	}
	for i, op := range operations {
		row := i + 2
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("A%d", row), op.OperationTime.Format("2006-01-02 15:04:05"))
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("B%d", row), op.AccountID)
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("C%d", row), string(op.Strategy))
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("D%d", row), op.MinAmountThreshold.StringFixed(2))
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("E%d", row), op.RecordsBefore)
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("F%d", row), op.RecordsAfter)
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("G%d", row), op.MergedRecords)
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("H%d", row), op.TotalAmount.StringFixed(2))
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("I%d", row), string(op.Status))
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("J%d", row), op.IsDryRun)
		_ = f.SetCellValue(operationsSheet, fmt.Sprintf("K%d", row), op.ResultMessage)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
