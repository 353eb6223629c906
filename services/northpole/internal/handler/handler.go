package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/services/northpole/api"
	"github.com/xinkaiwang/northpole/services/northpole/internal/biz"
)

type Handler struct {
	app *biz.App
}

func NewHandler(app *biz.App) *Handler {
	return &Handler{app: app}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/api/ping", ErrorHandlingMiddleware(http.HandlerFunc(h.PingHandler)))
	mux.Handle("/api/status", ErrorHandlingMiddleware(http.HandlerFunc(h.StatusHandler)))
	mux.Handle("/api/speeds", ErrorHandlingMiddleware(http.HandlerFunc(h.SpeedsHandler)))
	mux.Handle("/api/dispatch", ErrorHandlingMiddleware(http.HandlerFunc(h.DispatchHandler)))
	mux.Handle("/api/release", ErrorHandlingMiddleware(http.HandlerFunc(h.ReleaseHandler)))
	mux.Handle("/api/reset", ErrorHandlingMiddleware(http.HandlerFunc(h.ResetHandler)))
	mux.Handle("/api/worker", ErrorHandlingMiddleware(http.HandlerFunc(h.WorkerHandler)))
}

func checkMethod(r *http.Request, methods ...string) {
	for _, m := range methods {
		if r.Method == m {
			return
		}
	}
	panic(kerror.Create("MethodNotAllowed", "method not allowed").
		With("method", r.Method).
		WithErrorCode(kerror.EC_INVALID_PARAMETER))
}

// decodeBody: an empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) {
	if r.Body == nil || r.ContentLength == 0 {
		return
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		panic(kerror.Wrap(err, "InvalidRequestBody", "failed to decode request", false).
			WithErrorCode(kerror.EC_INVALID_PARAMETER))
	}
}

func writeJson(w http.ResponseWriter, resp interface{}) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		panic(kerror.Create("EncodingError", "failed to encode response").
			WithErrorCode(kerror.EC_INTERNAL_ERROR).
			With("error", err.Error()))
	}
}

func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	checkMethod(r, http.MethodGet)
	klogging.Verbose(r.Context()).Log("PingRequest", "")

	var resp string
	kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.Ping", func() {
		resp = h.app.Ping(r.Context())
	})
	writeJson(w, resp)
}

func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	checkMethod(r, http.MethodGet)
	klogging.Verbose(r.Context()).Log("StatusRequest", "")

	var resp *api.StatusJson
	kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.GetStatus", func() {
		resp = h.app.GetStatus(r.Context())
	})
	writeJson(w, resp)
}

// SpeedsHandler: GET reads, POST replaces both speeds.
func (h *Handler) SpeedsHandler(w http.ResponseWriter, r *http.Request) {
	checkMethod(r, http.MethodGet, http.MethodPost)

	var resp *api.SpeedsVm
	if r.Method == http.MethodGet {
		kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.GetSpeeds", func() {
			resp = h.app.GetSpeeds(r.Context())
		})
		writeJson(w, resp)
		return
	}
	req := &api.SpeedsVm{}
	decodeBody(r, req)
	klogging.Info(r.Context()).With("workSpeed", req.WorkSpeed).With("vacationSpeed", req.VacationSpeed).Log("SetSpeedsRequest", "")
	kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.SetSpeeds", func() {
		resp = h.app.SetSpeeds(r.Context(), req)
	})
	writeJson(w, resp)
}

func (h *Handler) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	checkMethod(r, http.MethodPost)
	req := &api.DispatchRequest{Class: r.URL.Query().Get("class")}
	decodeBody(r, req)

	var resp *api.DispatchResponse
	kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.Dispatch", func() {
		resp = h.app.Dispatch(r.Context(), req)
	})
	klogging.Info(r.Context()).
		With("class", req.Class).
		With("dispatched", resp.Dispatched).
		With("groupId", resp.GroupId).
		Log("DispatchResponse", "")
	writeJson(w, resp)
}

func (h *Handler) ReleaseHandler(w http.ResponseWriter, r *http.Request) {
	checkMethod(r, http.MethodPost)

	var resp *api.ReleaseResponse
	kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.Release", func() {
		resp = h.app.Release(r.Context())
	})
	klogging.Info(r.Context()).With("released", resp.Released).With("groupId", resp.GroupId).Log("ReleaseResponse", "")
	writeJson(w, resp)
}

func (h *Handler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	checkMethod(r, http.MethodPost)

	var resp *api.ResetResponse
	kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.Reset", func() {
		resp = h.app.Reset(r.Context())
	})
	klogging.Info(r.Context()).With("deleted", resp.Deleted).Log("ResetResponse", "")
	writeJson(w, resp)
}

func (h *Handler) WorkerHandler(w http.ResponseWriter, r *http.Request) {
	checkMethod(r, http.MethodGet)

	var resp *api.WorkerVm
	kmetrics.InstrumentSummaryRunVoid(r.Context(), "biz.GetWorker", func() {
		resp = h.app.GetWorker(r.Context(), r.URL.Query().Get("id"))
	})
	writeJson(w, resp)
}
