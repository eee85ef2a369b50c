package export

import (
	"fmt"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/xuri/excelize/v2"
)

// SheetName is the single worksheet of the XLSX export
const SheetName = "Candidates"

// WorkbookFilename is the bulk XLSX download name for a job.
func WorkbookFilename(jobID string) string {
	return "substitute_candidates_" + jobID + ".xlsx"
}

// CandidatesXLSX writes the CSV columns to a workbook. Scores stay numeric.
func CandidatesXLSX(candidates []domain.Candidate) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name worksheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, col := range Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, c := range candidates {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}

		fields := Row(c)
		row := make([]any, len(fields))
		for j, v := range fields {
			row[j] = v
		}
		row[3] = c.Score

		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write candidate %s: %w", c.EmployeeID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
