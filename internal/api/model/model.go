package model

import "time"

// Submission is one substitute job handed to a console session. The latest
// row per session is the held handle.
type Submission struct {
	JobID      string    `db:"job_id"`
	SessionKey string    `db:"session_key"`
	CreatedAt  time.Time `db:"created_at"`
}
