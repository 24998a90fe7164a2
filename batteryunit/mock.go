package batteryunit

import (
	"time"

	"github.com/consus-energy/edge-controller/telemetry"
	"github.com/google/uuid"
)

// MockUnit is a canned-response stand-in for Unit, used by controller tests that don't want to stand up
// a real Driver + MockTransport.
type MockUnit struct {
	ConsusID string
	NextErr  error
	Sample   telemetry.Sample
}

func NewMockUnit(consusID string) *MockUnit {
	return &MockUnit{ConsusID: consusID}
}

func (m *MockUnit) ReadSample(now time.Time) (telemetry.Sample, error) {
	if m.NextErr != nil {
		return telemetry.Sample{}, m.NextErr
	}
	s := m.Sample
	s.ID = uuid.New()
	s.ConsusID = m.ConsusID
	s.Time = now
	return s, nil
}
