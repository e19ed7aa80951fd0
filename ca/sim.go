package ca

import "sync"

// Sim is an in-memory Client used when no gateway is configured, for mock
// mode, and in tests.  PVs spring into existence on first access with a
// zero value; SetOffline makes a PV read as disconnected.
type Sim struct {
	mu      sync.Mutex
	values  map[string]float64
	offline map[string]bool
}

// NewSim returns an empty simulated client.
func NewSim() *Sim {
	return &Sim{
		values:  make(map[string]float64),
		offline: make(map[string]bool),
	}
}

// Seed sets the value of a PV without marking it offline or online.
func (s *Sim) Seed(pv string, value float64) {
	s.mu.Lock()
	s.values[pv] = value
	s.mu.Unlock()
}

// SetOffline marks a PV as disconnected (or reconnects it).
func (s *Sim) SetOffline(pv string, offline bool) {
	s.mu.Lock()
	s.offline[pv] = offline
	s.mu.Unlock()
}

// Get reads the simulated value of the PV.
func (s *Sim) Get(pv string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline[pv] {
		return 0, ErrDisconnected
	}
	v, ok := s.values[pv]
	if !ok {
		s.values[pv] = 0
	}
	return v, nil
}

// Put writes the simulated value of the PV.
func (s *Sim) Put(pv string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline[pv] {
		return ErrDisconnected
	}
	s.values[pv] = value
	return nil
}

// Connected reports whether the PV is online.
func (s *Sim) Connected(pv string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.offline[pv]
}
