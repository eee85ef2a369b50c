// Package analysis runs the substitute-analysis job workflow: submission,
// reconciliation of the current job, and the result view.
package analysis

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cuongbtq/metrohr-console/internal/hrapi"
)

// DefaultTopK is used when the result size is missing or not a positive integer
const DefaultTopK = 5

// SubmitForm is the operator's raw input
type SubmitForm struct {
	TargetEmployeeID string `json:"targetEmployeeId" form:"targetEmployeeId"`
	Department       string `json:"department" form:"department"`
	TopK             TopK   `json:"topK" form:"topK"`
	RequiredSkills   string `json:"requiredSkills" form:"requiredSkills"`
}

// TopK is the raw result size. JSON may carry it as a number or a string;
// either way it is coerced by ParseTopK.
type TopK string

// UnmarshalJSON keeps the literal text of any scalar.
func (k *TopK) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*k = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = TopK(s)
		return nil
	}
	*k = TopK(data)
	return nil
}

// ParseTopK coerces text input to a positive result size.
func ParseTopK(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultTopK
	}
	return n
}

// ParseSkills splits a comma separated list, trimming and dropping empty entries.
func ParseSkills(raw string) []string {
	var skills []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}

// Request builds the job-creation payload.
func (f SubmitForm) Request() hrapi.SubstituteRequest {
	req := hrapi.SubstituteRequest{
		TopK:           ParseTopK(string(f.TopK)),
		Scope:          hrapi.Scope{Department: strings.TrimSpace(f.Department)},
		RequiredSkills: ParseSkills(f.RequiredSkills),
	}
	if target := strings.TrimSpace(f.TargetEmployeeID); target != "" {
		req.TargetEmployeeID = &target
	}
	return req
}
