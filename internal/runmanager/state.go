package runmanager

import (
	"time"

	"github.com/mattjoyce/runwatch/internal/model"
)

// stateful is implemented by runs and run tasks.
type stateful interface {
	GetStatus() model.RunStatus
	SetStatus(model.RunStatus)
	GetStartTime() *time.Time
	SetStartTime(*time.Time)
	GetEndTime() *time.Time
	SetEndTime(*time.Time)
}

// updateState applies a status observed at ts. The start time only moves
// earlier. A status is adopted only while the entity is open or when ts is
// strictly newer than the recorded end, so replayed or reordered events
// cannot roll back a later close.
func updateState(s stateful, status model.RunStatus, ts time.Time) {
	ts = ts.UTC()
	if start := s.GetStartTime(); start == nil || ts.Before(*start) {
		s.SetStartTime(&ts)
	}

	if end := s.GetEndTime(); end != nil && !ts.After(*end) {
		return
	}
	if status.IsEnd() {
		s.SetEndTime(&ts)
	} else {
		s.SetEndTime(nil)
	}
	s.SetStatus(status)
}
