package inmemdb

import (
	"sync"

	"github.com/trezcool/attendance/core/session"
)

type (
	DB struct {
		scans *scanTable
	}

	scanTable struct {
		mutex sync.RWMutex
		table map[string]*session.ScanRecord
		order []string // insertion order
	}
)

func Open() *DB {
	return &DB{
		scans: &scanTable{table: make(map[string]*session.ScanRecord)},
	}
}
