package ca

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cr-xu/optimizer/comm"
)

const (
	timeout = 3 * time.Second

	// responses fit well within one TCP frame
	respBufSize = 1500
)

// Gateway is a Client backed by a channel access gateway.  It holds a
// connection pool and is safe for concurrent use.  Requests are rate
// limited so a runaway optimizer cannot hammer the IOCs behind the gateway.
type Gateway struct {
	pool    *comm.Pool
	limiter *rate.Limiter
}

// NewGateway returns a Gateway speaking to addr.  reqsPerSecond bounds the
// request rate; zero or negative means no limit.
func NewGateway(addr string, reqsPerSecond float64) *Gateway {
	maker := comm.BackingOffTCPConnMaker(addr, timeout)
	pool := comm.NewPool(1, 30*time.Second, maker)
	var lim *rate.Limiter
	if reqsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(reqsPerSecond), 1)
	}
	return &Gateway{pool: pool, limiter: lim}
}

// roundTrip sends one request line and returns the payload of the "ok"
// response, or an error for "err" responses and transport failures.
func (g *Gateway) roundTrip(req string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(context.Background()); err != nil {
			return "", err
		}
	}
	conn, err := g.pool.Get()
	if err != nil {
		return "", err
	}
	defer func() { g.pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return "", err
	}
	_, err = io.WriteString(wrap, req)
	if err != nil {
		return "", err
	}
	buf := make([]byte, respBufSize)
	n, err := wrap.Read(buf)
	if err != nil {
		return "", err
	}
	resp := strings.TrimRight(string(buf[:n]), "\r")
	switch {
	case resp == "ok":
		return "", nil
	case strings.HasPrefix(resp, "ok "):
		return resp[3:], nil
	case strings.HasPrefix(resp, "err "):
		reason := resp[4:]
		if strings.Contains(reason, "disconnected") {
			return "", ErrDisconnected
		}
		return "", fmt.Errorf("%w: %s", ErrGateway, reason)
	}
	return "", fmt.Errorf("malformed gateway response %q", resp)
}

// Get reads the current value of the PV.
func (g *Gateway) Get(pv string) (float64, error) {
	resp, err := g.roundTrip("get " + pv)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// Put writes a value to the PV.
func (g *Gateway) Put(pv string, value float64) error {
	_, err := g.roundTrip(fmt.Sprintf("put %s %s", pv, strconv.FormatFloat(value, 'g', -1, 64)))
	return err
}

// Connected reports whether the PV's channel is connected on the gateway
// side.  Transport errors read as disconnected; the caller gets a null
// reading either way.
func (g *Gateway) Connected(pv string) bool {
	resp, err := g.roundTrip("conn " + pv)
	if err != nil {
		return false
	}
	return resp == "connected"
}
