/*Package comm provides pooled, terminator-framed connections to control
system gateways.

The expected usage is to build a Pool with BackingOffTCPConnMaker, lease a
connection per request, and wrap it with NewTerminator and NewTimeout
before doing I/O:

	conn, err := pool.Get()
	if err != nil {
		return err
	}
	defer func() { pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, 3*time.Second)

Connections handed out by the pool are free of contention; the caller owns
the connection until it is returned.
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

var (
	// ErrNotConnected is generated when I/O is attempted on a nil connection.
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrNoDeadlineSupport is generated when NewTimeout is given a stream
	// that does not implement deadlines.
	ErrNoDeadlineSupport = errors.New("stream does not support deadlines")
)

// CreationFunc is a function which returns a new "connection" to something.
// A closure should be used to encapsulate the variables and functions needed.
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write.
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr with an
// exponential backoff.  Gateways at the lab do not like being connection
// thrashed, so timeouts are retried for a few seconds before giving up.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		wasTimeout := false
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil {
				errS := strings.ToLower(err.Error())
				if strings.Contains(errS, "refused") {
					return err
				}
				wasTimeout = true
				return nil
			}
			wasTimeout = false
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err == nil && !wasTimeout {
			return conn, nil
		}
		if wasTimeout {
			return nil, fmt.Errorf("connection timeout to %s", addr)
		}
		return nil, err
	}
}

// Terminator wraps a ReadWriter, appending the Tx terminator to every write
// and reading until (and stripping) the Rx terminator.
type Terminator struct {
	rw     io.ReadWriter
	rx, tx byte
}

// NewTerminator returns a Terminator wrapping rw.
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, rx: rx, tx: tx}
}

// Write sends p followed by the Tx terminator.
func (t *Terminator) Write(p []byte) (int, error) {
	if t.rw == nil {
		return 0, ErrNotConnected
	}
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, t.tx)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read fills p up to the Rx terminator, which is consumed but not copied.
// Bytes are read one at a time so nothing beyond the terminator is pulled
// off the wire; replies to later commands stay put.
func (t *Terminator) Read(p []byte) (int, error) {
	if t.rw == nil {
		return 0, ErrNotConnected
	}
	one := make([]byte, 1)
	n := 0
	for n < len(p) {
		_, err := io.ReadFull(t.rw, one)
		if err != nil {
			return n, err
		}
		if one[0] == t.rx {
			return n, nil
		}
		p[n] = one[0]
		n++
	}
	return n, io.ErrShortBuffer
}

// deadliner is the piece of net.Conn needed to bound an I/O operation in time.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// NewTimeout refreshes the deadline on the stream underlying rw and returns
// rw unchanged.  It unwraps Terminators.  If no deadline support is found,
// ErrNoDeadlineSupport is returned and the stream is left as-is.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	inner := rw
	if t, ok := inner.(*Terminator); ok {
		inner = t.rw
	}
	if d, ok := inner.(deadliner); ok {
		return rw, d.SetDeadline(time.Now().Add(timeout))
	}
	return rw, ErrNoDeadlineSupport
}
