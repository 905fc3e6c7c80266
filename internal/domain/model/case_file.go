package model

import "time"

// CaseFile is a reference to one uploaded document belonging to a case.
// Rows are written by the document intake surface; the job core only
// reads them when assembling export archives.
type CaseFile struct {
	ID        string    `json:"id"         db:"id"`
	CaseID    string    `json:"case_id"    db:"case_id"`
	OrgID     string    `json:"org_id"     db:"org_id"`
	FileKey   string    `json:"file_key"   db:"file_key"`
	Category  string    `json:"category"   db:"category"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
