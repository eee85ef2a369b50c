// Package export serialises substitute candidates for download.
package export

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
)

// Columns is the fixed export header.
var Columns = []string{"employeeId", "name", "email", "score", "department", "designation", "skills", "details"}

const skillSeparator = "; "

// CandidatesFilename is the bulk download name for a job.
func CandidatesFilename(jobID string) string {
	return "substitute_candidates_" + jobID + ".csv"
}

// CandidateFilename is the per-row download name.
func CandidateFilename(employeeID string) string {
	return "candidate_" + employeeID + ".csv"
}

// CandidatesCSV renders the header followed by one row per candidate.
// Output is deterministic for a given candidate list.
func CandidatesCSV(candidates []domain.Candidate) []byte {
	lines := make([]string, 0, len(candidates)+1)
	lines = append(lines, quoteRow(Columns))
	for _, c := range candidates {
		lines = append(lines, quoteRow(Row(c)))
	}
	return []byte(strings.Join(lines, "\n"))
}

// CandidateCSV renders a single candidate with the same header.
func CandidateCSV(c domain.Candidate) []byte {
	return CandidatesCSV([]domain.Candidate{c})
}

// Row flattens a candidate into column order.
func Row(c domain.Candidate) []string {
	return []string{
		c.EmployeeID,
		c.Name,
		c.Email,
		FormatScore(c.Score),
		c.Department.String(),
		c.Designation.String(),
		strings.Join(c.Skills, skillSeparator),
		formatDetails(c.Details),
	}
}

// FormatScore uses the shortest decimal form, so 0.91 stays "0.91".
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// map keys are marshalled in sorted order
func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	b, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(b)
}

func quoteRow(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quote(f)
	}
	return strings.Join(quoted, ",")
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
