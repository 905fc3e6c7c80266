package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lexia/casedesk/internal/domain/model"
)

// CaseFileRepo provides read access to a case's document references.
// The intake surface owns writes to this table.
type CaseFileRepo struct {
	DB *sql.DB
}

// NewCaseFileRepo creates a new CaseFileRepo instance.
func NewCaseFileRepo(db *sql.DB) *CaseFileRepo {
	return &CaseFileRepo{DB: db}
}

// ListByCase returns every file reference attached to the given case.
func (r *CaseFileRepo) ListByCase(ctx context.Context, caseID string) ([]*model.CaseFile, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, case_id, org_id, file_key, category, created_at
		FROM case_files
		WHERE case_id = $1
		ORDER BY category, created_at
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case files: %w", err)
	}
	defer rows.Close()

	var files []*model.CaseFile
	for rows.Next() {
		var f model.CaseFile
		if scanErr := rows.Scan(&f.ID, &f.CaseID, &f.OrgID, &f.FileKey, &f.Category, &f.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan case file: %w", scanErr)
		}
		files = append(files, &f)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate case files: %w", rowsErr)
	}

	return files, nil
}
