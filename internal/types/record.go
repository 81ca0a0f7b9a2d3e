package types

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/biosig/biosigner/internal/tasks"
)

// IdentityRecord is the registry row for one enrolled identity.
type IdentityRecord struct {
	Did         string            `json:"did" db:"did"`
	IDHash      string            `json:"id_hash" db:"id_hash"`
	Network     string            `json:"network" db:"network"`
	HelperRefs  map[string]string `json:"helper_refs" db:"-"`
	Controllers []string          `json:"controllers" db:"-"`
	Threshold   int               `json:"threshold" db:"threshold"`
	EnrolledAt  time.Time         `json:"enrolled_at" db:"enrolled_at"`
	Revoked     bool              `json:"revoked" db:"revoked"`
}

// MetadataSubmission is the payload queued for the ledger worker after a
// successful enrollment. SubmissionID correlates the API log line with the
// worker log line for the same write.
type MetadataSubmission struct {
	SubmissionID string          `json:"submission_id"`
	Did          string          `json:"did"`
	Network      string          `json:"network"`
	Metadata     json.RawMessage `json:"metadata"`
}

// Task wraps the submission for the asynq queue.
func (m *MetadataSubmission) Task() (*asynq.Task, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(tasks.TypeMetadataSubmit, payload), nil
}
