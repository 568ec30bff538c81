package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Query holds a verification query against its project's model
// document. A query is born outdated with no result; result and
// outdated are mutated only by the invalidation cascade and by
// version-checked result reports from the checker.
type Query struct {
	bun.BaseModel `bun:"table:queries,alias:q"`

	ID        string    `bun:"id,pk,type:uuid"`
	ProjectID string    `bun:"project_id,notnull,type:uuid"`
	Text      string    `bun:"text,notnull"`
	Result    []byte    `bun:"result"`
	Outdated  bool      `bun:"outdated,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (q *Query) ValidateForCreate() error {
	if q.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if q.Text == "" {
		return errors.New("text is required")
	}
	if len(q.Text) > 4096 {
		return errors.New("text exceeds maximum length")
	}
	return nil
}
