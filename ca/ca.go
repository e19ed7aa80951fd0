/*Package ca provides clients for reading and writing EPICS process
variables (PVs) through a facility-side channel access gateway.

The gateway speaks a line-oriented ASCII protocol over TCP, one request per
line:

	get <pv>          -> ok <value>   |  err <reason>
	put <pv> <value>  -> ok           |  err <reason>
	conn <pv>         -> ok connected |  ok disconnected

Channel access proper is out of scope here; name resolution, monitors, and
circuit management all live on the gateway side.  This package only manages
the TCP leg between the optimizer host and the gateway.
*/
package ca

import "errors"

var (
	// ErrDisconnected is generated when a PV's channel is not connected.
	ErrDisconnected = errors.New("pv is not connected")

	// ErrGateway is generated when the gateway rejects a request outright.
	ErrGateway = errors.New("gateway rejected request")
)

// A Client can read, write, and probe process variables by name.
// Gateway implements it against real hardware; Sim implements it in memory.
type Client interface {
	// Get reads the current value of the PV.
	Get(pv string) (float64, error)

	// Put writes a value to the PV.
	Put(pv string, value float64) error

	// Connected reports whether the PV's channel is connected.
	Connected(pv string) bool
}
