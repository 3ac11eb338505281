package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

const scanRecordColumns = "id, session_id, payload, status, name, pc_no, source, lab, scanned_at"

type scanRecordRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*scanRecordRepository)(nil) // interface compliance check

func NewScanRecordRepository(db *sqlx.DB) session.Repository {
	return &scanRecordRepository{db: db}
}

func (repo scanRecordRepository) CreateScanRecord(ctx context.Context, rec session.ScanRecord) error {
	q := "INSERT INTO scan_records (" + scanRecordColumns + ") " +
		"VALUES (:id, :session_id, :payload, :status, :name, :pc_no, :source, :lab, :scanned_at)"
	if _, err := repo.db.NamedExecContext(ctx, q, rec); err != nil {
		return errors.Wrap(err, "inserting scan record")
	}
	return nil
}

func (repo scanRecordRepository) QueryScanRecords(ctx context.Context, sessionID string, ordering []core.DBOrdering) ([]session.ScanRecord, error) {
	q := "SELECT " + scanRecordColumns + " FROM scan_records WHERE session_id = ?"
	if order := orderBy(ordering); order != "" {
		q += " ORDER BY " + order
	}

	recs := make([]session.ScanRecord, 0)
	if err := repo.db.SelectContext(ctx, &recs, repo.db.Rebind(q), sessionID); err != nil {
		return nil, errors.Wrap(err, "querying scan records")
	}
	return recs, nil
}

// orderBy only keeps orderings on known columns: the result is safe to inline in a query.
func orderBy(ordering []core.DBOrdering) string {
	ordering = core.CleanOrderings(ordering, session.ScanRecordOrderings...)
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return strings.Join(parts, ", ")
}
