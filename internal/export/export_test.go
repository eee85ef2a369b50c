package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"

	"github.com/cuongbtq/metrohr-console/internal/analysis/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleCandidates() []domain.Candidate {
	return []domain.Candidate{
		{
			EmployeeID:  "E9",
			Name:        "Jane",
			Email:       "jane@metro.example",
			Score:       0.91,
			Skills:      []string{"go", "sql"},
			Details:     map[string]any{"skillMatch": true, "rating": 4.5},
			Department:  domain.Ref{ID: "D1", Name: "Operations"},
			Designation: domain.Ref{ID: "G2"},
		},
		{
			EmployeeID: "E10",
			Name:       `Bob "The Builder", Jr.`,
			Email:      "bob@metro.example",
			Score:      0.5,
		},
	}
}

func TestCandidatesCSV_Layout(t *testing.T) {
	out := string(CandidatesCSV(sampleCandidates()))
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 3)
	assert.Equal(t, `"employeeId","name","email","score","department","designation","skills","details"`, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"E9","Jane",`))
	assert.Equal(t,
		`"E9","Jane","jane@metro.example","0.91","Operations","G2","go; sql","{""rating"":4.5,""skillMatch"":true}"`,
		lines[1],
	)
	assert.Equal(t, `"E10","Bob ""The Builder"", Jr.","bob@metro.example","0.5","","","",""`, lines[2])
}

func TestCandidatesCSV_Deterministic(t *testing.T) {
	first := CandidatesCSV(sampleCandidates())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CandidatesCSV(sampleCandidates()))
	}
}

func TestCandidatesCSV_RoundTrip(t *testing.T) {
	tricky := []string{
		`plain`,
		`with,comma`,
		`with "quotes"`,
		`"starts and ends"`,
		`,",",`,
		`multi
line`,
		``,
	}

	var candidates []domain.Candidate
	for _, v := range tricky {
		candidates = append(candidates, domain.Candidate{EmployeeID: "E1", Name: v, Email: v})
	}

	records, err := csv.NewReader(bytes.NewReader(CandidatesCSV(candidates))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(tricky)+1)

	assert.Equal(t, Columns, records[0])
	for i, v := range tricky {
		assert.Equal(t, v, records[i+1][1])
		assert.Equal(t, v, records[i+1][2])
	}
}

func TestCandidatesCSV_Empty(t *testing.T) {
	records, err := csv.NewReader(bytes.NewReader(CandidatesCSV(nil))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{Columns}, records)
}

func TestCandidateCSV_SameContract(t *testing.T) {
	c := sampleCandidates()[0]
	bulk := strings.Split(string(CandidatesCSV([]domain.Candidate{c})), "\n")
	single := strings.Split(string(CandidateCSV(c)), "\n")

	assert.Equal(t, bulk, single)
}

func TestFilenames(t *testing.T) {
	assert.Equal(t, "substitute_candidates_J1.csv", CandidatesFilename("J1"))
	assert.Equal(t, "candidate_E9.csv", CandidateFilename("E9"))
	assert.Equal(t, "substitute_candidates_J1.xlsx", WorkbookFilename("J1"))
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.91, "0.91"},
		{1, "1"},
		{0, "0"},
		{0.125, "0.125"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatScore(tt.score))
	}
}

func TestCandidatesXLSX(t *testing.T) {
	data, err := CandidatesXLSX(sampleCandidates())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, SheetName, f.GetSheetName(0))

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "E9", rows[1][0])
	score, err := strconv.ParseFloat(rows[1][3], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.91, score, 1e-9)
	assert.Equal(t, "go; sql", rows[1][6])
	assert.Equal(t, `Bob "The Builder", Jr.`, rows[2][1])
}
