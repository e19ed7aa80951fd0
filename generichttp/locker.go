package generichttp

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"
	"sync"
)

// Locker is an HTTP-manipulable lock.  While locked, the Check middleware
// bounces requests with 423 (Locked); the GUI uses it to fence off the
// machine interface while a scan is running.  The lock route itself is
// never protected so the holder can always release it.
type Locker struct {
	mu       sync.Mutex
	isLocked bool

	// DoNotProtect is a list of path fragments the lock does not apply to.
	DoNotProtect []string
}

// NewLocker returns a Locker with DoNotProtect prepopulated with "lock".
func NewLocker() *Locker {
	return &Locker{DoNotProtect: []string{"lock"}}
}

// Lock the locker.
func (l *Locker) Lock() {
	l.mu.Lock()
	l.isLocked = true
	l.mu.Unlock()
}

// Unlock the locker.
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.isLocked = false
	l.mu.Unlock()
}

// Locked returns true if the locker is locked.
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLocked
}

// Check is a middleware that returns 423 while the locker is locked.
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() {
			protected := true
			for _, str := range l.DoNotProtect {
				if strings.Contains(r.URL.Path, str) {
					protected = false
				}
			}
			if protected {
				w.WriteHeader(http.StatusLocked)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks based on {"bool": ...} in the request body.
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns Locked() over HTTP as JSON.
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	hp := HumanPayload{T: types.Bool, Bool: l.Locked()}
	hp.EncodeAndRespond(w, r)
}

// Inject adds the lock routes to an HTTPer's table.
func (l *Locker) Inject(other HTTPer) {
	rt := other.RT()
	rt[MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}
