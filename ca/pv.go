package ca

import "sync"

// PV is a handle to a single process variable.  Handles are cheap; they
// cache the last value read and the last known connection state so UI
// layers can poll without another gateway round trip.
type PV struct {
	// Name is the PV name as used in caget/caput.
	Name string

	client Client

	mu        sync.Mutex
	last      float64
	everRead  bool
	connected bool
}

// NewPV returns a handle to pv backed by client.  No network traffic
// happens until the first Get, Put, or Connected call.
func NewPV(name string, client Client) *PV {
	return &PV{Name: name, client: client}
}

// Get reads the current value.  ErrDisconnected is returned for channels
// the gateway cannot reach.
func (pv *PV) Get() (float64, error) {
	v, err := pv.client.Get(pv.Name)
	pv.mu.Lock()
	defer pv.mu.Unlock()
	if err != nil {
		pv.connected = false
		return 0, err
	}
	pv.last = v
	pv.everRead = true
	pv.connected = true
	return v, nil
}

// Put writes a value to the PV.
func (pv *PV) Put(value float64) error {
	err := pv.client.Put(pv.Name, value)
	pv.mu.Lock()
	pv.connected = err == nil
	pv.mu.Unlock()
	return err
}

// Connected probes the channel state through the client and caches it.
func (pv *PV) Connected() bool {
	c := pv.client.Connected(pv.Name)
	pv.mu.Lock()
	pv.connected = c
	pv.mu.Unlock()
	return c
}

// Last returns the most recently read value and whether any read has
// succeeded on this handle.
func (pv *PV) Last() (float64, bool) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.last, pv.everRead
}
