package gormrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

type scanRecord struct {
	ID        string        `gorm:"column:id;primaryKey;type:varchar(36)"`
	SessionID string        `gorm:"column:session_id;type:varchar(36);not null;index:idx_scan_records_session"`
	Payload   string        `gorm:"column:payload;not null"`
	Status    string        `gorm:"column:status;type:varchar(20);not null"`
	Name      string        `gorm:"column:name;not null;default:''"`
	PCNo      sql.NullInt64 `gorm:"column:pc_no"`
	Source    string        `gorm:"column:source;type:varchar(10);not null"`
	Lab       string        `gorm:"column:lab;not null;default:''"`
	ScannedAt time.Time     `gorm:"column:scanned_at;not null;index:idx_scan_records_session"`
}

func (scanRecord) TableName() string { return "scan_records" }

func toModel(rec session.ScanRecord) scanRecord {
	return scanRecord{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Payload:   rec.Payload,
		Status:    string(rec.Status),
		Name:      rec.Name,
		PCNo:      sql.NullInt64{Int64: int64(rec.PCNo.Int), Valid: rec.PCNo.Valid},
		Source:    string(rec.Source),
		Lab:       rec.Lab,
		ScannedAt: rec.ScannedAt.UTC(),
	}
}

func (m scanRecord) toRecord() session.ScanRecord {
	return session.ScanRecord{
		ID:        m.ID,
		SessionID: m.SessionID,
		Payload:   m.Payload,
		Status:    session.Status(m.Status),
		Name:      m.Name,
		PCNo:      null.NewInt(int(m.PCNo.Int64), m.PCNo.Valid),
		Source:    session.Source(m.Source),
		Lab:       m.Lab,
		ScannedAt: m.ScannedAt.UTC(),
	}
}

type scanRecordRepository struct {
	db *gorm.DB
}

var _ session.Repository = (*scanRecordRepository)(nil)

func NewScanRecordRepository(db *gorm.DB) session.Repository {
	return &scanRecordRepository{db: db}
}

func (repo scanRecordRepository) CreateScanRecord(ctx context.Context, rec session.ScanRecord) error {
	m := toModel(rec)
	if err := repo.db.WithContext(ctx).Create(&m).Error; err != nil {
		return errors.Wrap(err, "inserting scan record")
	}
	return nil
}

func (repo scanRecordRepository) QueryScanRecords(ctx context.Context, sessionID string, ordering []core.DBOrdering) ([]session.ScanRecord, error) {
	q := repo.db.WithContext(ctx).Where("session_id = ?", sessionID)
	for _, ord := range core.CleanOrderings(ordering, session.ScanRecordOrderings...) {
		q = q.Order(ord.String())
	}

	var rows []scanRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying scan records")
	}
	recs := make([]session.ScanRecord, 0, len(rows))
	for _, m := range rows {
		recs = append(recs, m.toRecord())
	}
	return recs, nil
}
