package comm

import (
	"io"
	"sync"
	"time"
)

// Pool is a communication pool which holds one or more connections to a
// device that will be closed if they are not in use, and re-opened as
// needed.  It is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	maxSize int                     // maximum number of connections, == cap(conns)
	onLease int                     // number of connections given out, <= cap(conns)
	timeout time.Duration           // time after len(conns) == maxSize to free all connections
	conns   chan io.ReadWriteCloser // the circular buffer of idle connections
	timer   *time.Timer             // timer used to destroy connections after all are returned
	maker   CreationFunc

	reclaiming bool
	mu         sync.Mutex
}

// NewPool creates a new Pool holding up to maxSize connections made by
// maker, reclaimed after timeout of disuse.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		timer:   time.NewTimer(timeout),
		maker:   maker,
	}
	p.timer.Stop() // nothing to reclaim yet
	return p
}

// Get retrieves a connection from the pool, blocking until one is available
// if all are in use.  It is guaranteed that there is no contention for the
// ReadWriter.  The consumer should not cast it to its concrete type.
//
// When done, return it with Put, or discard it with Destroy if it has gone
// bad (e.g., all calls error).  ReturnWithError does the right thing in a
// deferred call.  If the error from Get is not nil, the value must not be
// returned to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.timer.Stop()

	p.mu.Lock()
	// short circuit: if a connection is idle, immediately return it
	if len(p.conns) > 0 {
		ret := <-p.conns
		p.onLease++
		p.mu.Unlock()
		return ret, nil
	}
	// all given out: wait for one to come back, without holding the lock
	if p.onLease == p.maxSize {
		p.mu.Unlock()
		ret := <-p.conns
		p.mu.Lock()
		p.onLease++
		p.mu.Unlock()
		return ret, nil
	}
	// none idle and not all out; make one and lease it.  Only increment
	// the lease count if we are giving out something other than garbage.
	c, err := p.maker()
	if err == nil {
		p.onLease++
	}
	p.mu.Unlock()
	return c, err
}

// Put restores a connection to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timeout
// has elapsed.  Junk connections should be Destroy()'d instead.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	p.conns <- rwc
	p.onLease--
	if p.onLease == 0 {
		p.startReclaim()
	}
	p.mu.Unlock()
}

// Destroy immediately frees a connection.  This should be used instead of
// Put if the connection has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	rwc.Close()
	p.mu.Lock()
	p.onLease--
	p.mu.Unlock()
}

// ReturnWithError Puts the connection back if err is nil, otherwise
// Destroys it.  Intended for use in a defer.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if rw == nil {
		return
	}
	if err == nil {
		p.Put(rw)
	} else {
		p.Destroy(rw)
	}
}

// Size returns the number of connections in the pool, or given out from it.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of connections currently given out.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// startReclaim arms the reclamation timer; when it fires with no
// outstanding leases, all idle connections are closed.  Callers hold p.mu.
func (p *Pool) startReclaim() {
	p.timer.Reset(p.timeout)
	if p.reclaiming {
		return
	}
	p.reclaiming = true
	go func() {
		<-p.timer.C
		p.mu.Lock()
		for len(p.conns) > 0 {
			closer := <-p.conns
			closer.Close()
		}
		p.reclaiming = false
		p.mu.Unlock()
	}()
}
