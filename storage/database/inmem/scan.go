package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

type scanRecordRepository struct {
	db *scanTable
}

var _ session.Repository = (*scanRecordRepository)(nil)

func NewScanRecordRepository(db *DB) session.Repository {
	return &scanRecordRepository{db: db.scans}
}

func (repo *scanRecordRepository) CreateScanRecord(_ context.Context, rec session.ScanRecord) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, exists := repo.db.table[rec.ID]; exists {
		return errors.Errorf("scan record %s already exists", rec.ID)
	}
	repo.db.table[rec.ID] = &rec
	repo.db.order = append(repo.db.order, rec.ID)
	return nil
}

func (repo *scanRecordRepository) QueryScanRecords(_ context.Context, sessionID string, ordering []core.DBOrdering) ([]session.ScanRecord, error) {
	repo.db.mutex.RLock()
	recs := make([]session.ScanRecord, 0)
	for _, id := range repo.db.order {
		if rec := repo.db.table[id]; rec.SessionID == sessionID {
			recs = append(recs, *rec)
		}
	}
	repo.db.mutex.RUnlock()

	ordering = core.CleanOrderings(ordering, session.ScanRecordOrderings...)
	if len(ordering) > 0 {
		sort.SliceStable(recs, func(i, j int) bool {
			for _, ord := range ordering {
				c := compare(recs[i], recs[j], ord.Field)
				if c == 0 {
					continue
				}
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}
	return recs, nil
}

func compare(a, b session.ScanRecord, field string) int {
	switch field {
	case "scanned_at":
		return a.ScannedAt.Compare(b.ScannedAt)
	case "payload":
		return strings.Compare(a.Payload, b.Payload)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "source":
		return strings.Compare(string(a.Source), string(b.Source))
	}
	return 0
}
