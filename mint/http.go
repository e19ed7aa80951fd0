package mint

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/cr-xu/optimizer/generichttp"
)

// HTTPWrapper exposes a MachineInterface over HTTP for the optimizer GUI.
// Bind its route table onto a router to use it.
type HTTPWrapper struct {
	MachineInterface

	// RouteTable maps method+path patterns to handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured.
func NewHTTPWrapper(m MachineInterface) HTTPWrapper {
	w := HTTPWrapper{MachineInterface: m}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/value"}:              w.GetValueHTTP,
		{Method: http.MethodPost, Path: "/value"}:             w.SetValueHTTP,
		{Method: http.MethodGet, Path: "/energy"}:             generichttp.GetFloat(m.GetEnergy),
		{Method: http.MethodGet, Path: "/charge"}:             generichttp.GetFloat(m.GetCharge),
		{Method: http.MethodGet, Path: "/charge-current"}:     w.GetChargeCurrentHTTP,
		{Method: http.MethodGet, Path: "/losses"}:             w.GetLossesHTTP,
		{Method: http.MethodGet, Path: "/presets"}:            w.GetPresetsHTTP,
		{Method: http.MethodGet, Path: "/quick-add-devices"}:  w.GetQuickAddHTTP,
		{Method: http.MethodGet, Path: "/plot-attrs"}:         w.GetPlotAttrsHTTP,
		{Method: http.MethodPost, Path: "/write-data"}:        w.WriteDataHTTP,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer.
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// valueReq is the body of POST /value.
type valueReq struct {
	PV  string  `json:"pv"`
	F64 float64 `json:"f64"`
}

// GetValueHTTP reads the PV named by the pv query parameter.
func (h HTTPWrapper) GetValueHTTP(w http.ResponseWriter, r *http.Request) {
	pv := r.URL.Query().Get("pv")
	if pv == "" {
		http.Error(w, "pv query parameter is required", http.StatusBadRequest)
		return
	}
	v, err := h.GetValue(pv)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: v}
	hp.EncodeAndRespond(w, r)
}

// SetValueHTTP writes a PV from a JSON body of {"pv": ..., "f64": ...}.
func (h HTTPWrapper) SetValueHTTP(w http.ResponseWriter, r *http.Request) {
	req := valueReq{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PV == "" {
		http.Error(w, "pv field is required", http.StatusBadRequest)
		return
	}
	if err := h.SetValue(req.PV, req.F64); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetChargeCurrentHTTP returns the charge and current as one JSON object.
func (h HTTPWrapper) GetChargeCurrentHTTP(w http.ResponseWriter, r *http.Request) {
	charge, current, err := h.GetChargeCurrent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]float64{
		"charge":  charge,
		"current": current,
	})
}

// GetLossesHTTP returns the loss monitor readings as a JSON array.
func (h HTTPWrapper) GetLossesHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.GetLosses())
}

// GetPresetsHTTP returns the preset groups as JSON.
func (h HTTPWrapper) GetPresetsHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.GetPresetSettings())
}

// GetQuickAddHTTP returns the quick-add device groups as JSON.
func (h HTTPWrapper) GetQuickAddHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.GetQuickAddDevices())
}

// GetPlotAttrsHTTP returns the plot attribute labels as JSON.
func (h HTTPWrapper) GetPlotAttrsHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.GetPlotAttrs())
}

// writeDataReq is the body of POST /write-data.
type writeDataReq struct {
	MethodName   string    `json:"method_name"`
	Objective    Objective `json:"objective"`
	Devices      []Device  `json:"devices"`
	Maximization bool      `json:"maximization"`
	MaxIter      int       `json:"max_iter"`
}

// WriteDataHTTP persists a run posted by the GUI and responds with the
// saved filename as {"str": ...}.
func (h HTTPWrapper) WriteDataHTTP(w http.ResponseWriter, r *http.Request) {
	req := writeDataReq{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	devices := make([]*Device, len(req.Devices))
	for i := range req.Devices {
		devices[i] = &req.Devices[i]
	}
	filename, err := h.WriteData(req.MethodName, &req.Objective, devices, req.Maximization, req.MaxIter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.String, String: filename}
	hp.EncodeAndRespond(w, r)
}
