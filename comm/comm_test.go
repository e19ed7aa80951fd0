package comm_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/cr-xu/optimizer/comm"
)

// tcpEchoServer starts a loopback echo server and returns its address.
func tcpEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen:", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }()
		}
	}()
	return ln.Addr().String()
}

func dialMaker(addr string) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
}

func TestPoolLeasesToCapacity(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(3, time.Second, dialMaker(addr))
	for i := 0; i < 3; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		if conn == nil {
			t.Fatal("got nil connection without error")
		}
	}
	if pool.Size() != 3 {
		t.Errorf("pool size %d, want 3", pool.Size())
	}
	if pool.Active() != 3 {
		t.Errorf("pool active %d, want 3", pool.Active())
	}
}

func TestPoolReusesReturnedConns(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(1, time.Minute, dialMaker(addr))
	c1, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(c1)
	c2, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Error("pool did not reuse the idle connection")
	}
	if pool.Size() != 1 {
		t.Errorf("pool size %d, want 1", pool.Size())
	}
}

func TestPoolReclaimsIdleConns(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(2, 10*time.Millisecond, dialMaker(addr))
	c1, _ := pool.Get()
	c2, _ := pool.Get()
	pool.Put(c1)
	pool.Put(c2)
	time.Sleep(100 * time.Millisecond)
	if pool.Size() != 0 {
		t.Errorf("pool size %d after reclamation window, want 0", pool.Size())
	}
}

func TestPoolBlocksWhenExhausted(t *testing.T) {
	addr := tcpEchoServer(t)
	pool := comm.NewPool(2, time.Second, dialMaker(addr))
	for i := 0; i < 2; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal(err)
		}
	}
	extra := make(chan io.ReadWriter, 1)
	go func() {
		rw, _ := pool.Get()
		extra <- rw
	}()
	select {
	case <-extra:
		t.Fatal("pool leased more connections than its capacity")
	case <-time.After(250 * time.Millisecond):
		// held at capacity as intended
	}
}

func TestTerminatorRoundTrip(t *testing.T) {
	addr := tcpEchoServer(t)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	wrap := comm.NewTerminator(conn, '\n', '\n')
	if _, err := wrap.Write([]byte("get FOO:BAR")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := wrap.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "get FOO:BAR" {
		t.Errorf("round trip got %q, want %q", got, "get FOO:BAR")
	}
}

func TestBackingOffTCPConnMakerConnects(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := comm.BackingOffTCPConnMaker(addr, time.Second)
	conn, err := maker()
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
}
