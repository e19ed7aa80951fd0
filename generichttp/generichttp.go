// Package generichttp provides the plumbing used to expose machine
// interfaces over HTTP: a route table keyed by method and path, a JSON
// payload envelope, and typed request bodies.
package generichttp

import (
	"encoding/json"
	"go/types"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and a URL path, the key of a RouteTable.
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method+path pairs to handlers.
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes in the table as "METHOD path", sorted.
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	sort.Strings(routes)
	return routes
}

// Bind attaches every route in the table to r.
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.Method(mp.Method, mp.Path, handler)
	}
	r.Get("/endpoints", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(rt.Endpoints())
	})
}

// HTTPer is an object which can yield its route table for binding.
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize prepares a URL stem for mounting, "omc/mint" => "/omc/mint".
func SubMuxSanitize(s string) string {
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	if s == "/" {
		return s
	}
	return strings.TrimSuffix(s, "/")
}

// HumanPayload is a struct that encapsulates the human readable
// single-value JSON responses, e.g. {"f64": 3.14}.
type HumanPayload struct {
	// T holds the type of data actually populated
	T types.BasicKind

	Int    int
	Float  float64
	String string
	Bool   bool
}

// EncodeAndRespond writes the payload to w as JSON.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	enc := json.NewEncoder(w)
	switch hp.T {
	case types.Float64:
		err = enc.Encode(FloatT{F64: hp.Float})
	case types.Int:
		err = enc.Encode(IntT{Int: hp.Int})
	case types.String:
		err = enc.Encode(StrT{Str: hp.String})
	case types.Bool:
		err = enc.Encode(BoolT{Bool: hp.Bool})
	default:
		http.Error(w, "unknown payload type", http.StatusInternalServerError)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// FloatT is a struct with a single f64 field.
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field.
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single str field.
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field.
type BoolT struct {
	Bool bool `json:"bool"`
}

// GetFloat wraps a float-getting function in an HTTP handler.
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {"f64": value} and calls fcn with it.
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(f.F64); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
