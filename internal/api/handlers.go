package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/groundstation/internal/auditlog"
	"github.com/banshee-data/groundstation/internal/charts"
	"github.com/banshee-data/groundstation/internal/httputil"
	"github.com/banshee-data/groundstation/internal/monitoring"
)

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.pipe.State().Snapshot())
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.pipe.Status())
}

func (s *Server) showDisplay(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.sinks.Display.View())
}

func (s *Server) showOrientation(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.sinks.Orientation.Target())
}

type logEntry struct {
	auditlog.Entry
	Clock string `json:"clock"`
}

type logResponse struct {
	Capacity int        `json:"capacity"`
	Total    uint64     `json:"total"`
	Entries  []logEntry `json:"entries"`
}

func (s *Server) showLog(w http.ResponseWriter, r *http.Request) {
	audit := s.pipe.Audit()
	entries := audit.Snapshot()
	resp := logResponse{
		Capacity: audit.Capacity(),
		Total:    audit.Total(),
		Entries:  make([]logEntry, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = logEntry{Entry: e, Clock: e.Clock()}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) exportLog(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.pipe.Audit().WriteCSV(&buf); err != nil {
		if errors.Is(err, auditlog.ErrEmpty) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}

	filename := fmt.Sprintf("cubesat_telemetry_%s.csv", s.opts.Clock.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	series, ok := s.sinks.Charts.Lookup(r.PathValue("series"))
	if !ok {
		httputil.NotFound(w, "unknown chart")
		return
	}
	var buf bytes.Buffer
	if err := charts.Render(&buf, series); err != nil {
		monitoring.Logf("api: render %s chart: %v", series.Name, err)
		httputil.InternalServerError(w, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
