package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/roster"
)

var nowFunc = time.Now // mockable

// Session is one attendance-taking session: a roster and its state, guarded by a single lock.
type Session struct {
	ID string

	mu           sync.Mutex
	roster       *roster.Roster
	state        State
	lastActivity time.Time

	// camera capture
	camGen    uint64
	camCancel func()
	camDone   chan struct{}
	camStatus CameraStatus
	frame     Frame
	frameSeq  uint64
}

// New starts a session over ros, with an empty present set and a zero PC counter.
func New(ros *roster.Roster, lab string, capacity int) *Session {
	now := nowFunc()
	return &Session{
		ID:     uuid.New().String(),
		roster: ros,
		state: State{
			Lab:       lab,
			Capacity:  capacity,
			StartedAt: now,
			present:   make(map[string]struct{}),
		},
		lastActivity: now,
	}
}

// ProcessScan applies one scanned payload to the session.
// A payload already recorded yields StatusAlreadyPresent, one missing from the roster StatusNotFound;
// neither mutates the session. Otherwise the student is marked present and, while the PC counter
// is within capacity, gets the next PC number.
func (s *Session) ProcessScan(payload string) (Result, error) {
	id := core.CleanString(payload)
	if id == "" {
		return Result{}, errors.Wrap(core.ErrInvalidInput, "empty barcode payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowFunc()
	s.lastActivity = now

	if _, ok := s.state.present[id]; ok {
		return Result{Status: StatusAlreadyPresent, ID: id}, nil
	}
	if _, ok := s.roster.Get(id); !ok {
		return Result{Status: StatusNotFound, ID: id}, nil
	}

	s.state.present[id] = struct{}{}
	s.state.PCCounter++
	var pcNo null.Int
	if s.state.PCCounter <= s.state.Capacity {
		pcNo = null.IntFrom(s.state.PCCounter)
	}
	row, _ := s.roster.MarkPresent(id, now.Truncate(time.Second), pcNo)
	return Result{Status: StatusMatched, ID: id, Name: row.Name, PCNo: row.PCNo}, nil
}

// Info identifies the session in logs.
func (s *Session) Info() core.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.SessionInfo{ID: s.ID, Lab: s.state.Lab, Department: s.roster.Department}
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	present, absent := s.roster.Counts()
	return Summary{
		ID:         s.ID,
		Lab:        s.state.Lab,
		Department: s.roster.Department,
		Capacity:   s.state.Capacity,
		Total:      s.roster.Len(),
		Present:    present,
		Absent:     absent,
		PCCounter:  s.state.PCCounter,
		StartedAt:  s.state.StartedAt,
		Camera:     s.camStatus,
		Rows:       s.roster.Rows(),
	}
}

// Snapshot returns the export header and records, taken under the session lock.
func (s *Session) Snapshot(timestampLayout string) ([]string, [][]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = nowFunc()
	return s.roster.Header(), s.roster.Records(timestampLayout)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = nowFunc()
	s.mu.Unlock()
}

// LatestFrame returns the last captured frame and its sequence number (0 when none yet).
func (s *Session) LatestFrame() (Frame, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.frameSeq
}

func (s *Session) setFrame(f Frame) {
	s.mu.Lock()
	s.frame = f
	s.frameSeq++
	s.mu.Unlock()
}
