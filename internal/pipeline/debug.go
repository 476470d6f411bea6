package pipeline

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/groundstation/internal/telemetry"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var recordsTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/records.html.tmpl"))

const tailBuffer = 64

// Tail subscribes to raw records. Records arriving while the channel is full
// are dropped. The returned func unsubscribes.
func (p *Pipeline) Tail() (<-chan string, func()) {
	ch := make(chan string, tailBuffer)
	id := p.hub.Subscribe(telemetry.SinkFuncs{
		RawRecord: func(text string) {
			select {
			case ch <- text:
			default:
			}
		},
	}, telemetry.Interest{RawRecords: true})
	return ch, func() { p.hub.Unsubscribe(id) }
}

// AttachAdminRoutes mounts the record tail, record injection and audit log
// pages under /debug/.
func (p *Pipeline) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("records", "live tail of framed records", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := recordsTemplate.Execute(buf, struct{ Status Status }{p.Status()}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("records-tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		b, err := adminTemplateFS.ReadFile("templates/records-tail.js")
		if err != nil {
			http.Error(w, "Failed to open records-tail.js", http.StatusInternalServerError)
			return
		}
		w.Write(b)
	})

	// Server-sent events, one per framed record.
	debug.HandleSilentFunc("records-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		records, stop := p.Tail()
		defer stop()

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case record := <-records:
				if _, err := fmt.Fprintf(w, "data: %s\n\n", record); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	// Feeds one record through the parser as if it had arrived on a link.
	debug.HandleSilentFunc("records-inject", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		record := strings.TrimSpace(r.FormValue("record"))
		if record == "" {
			http.Error(w, "Missing record", http.StatusBadRequest)
			return
		}
		delta, err := p.Ingest("debug", record)
		if err != nil {
			fmt.Fprintf(w, "Logged without packet: %v", err)
			return
		}
		fmt.Fprintf(w, "Packet %d: %d fields changed", delta.PacketCount, len(delta.Changed))
	})

	debug.HandleFunc("audit", "audit log (newest first)", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		entries := p.audit.Snapshot()
		fmt.Fprintf(w, "%d of %d entries, %d appended\n\n", len(entries), p.audit.Capacity(), p.audit.Total())
		for _, e := range entries {
			fmt.Fprintf(w, "%s  %s\n", e.Clock(), e.Text)
		}
	})
}
