package linkmux

import (
	"bytes"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/packetlink/internal/packet"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendFrameTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-frame.html.tmpl"))

// BuildFrame parses a hex payload into a frame of the given capacity. When
// seal is set the checksum slot is filled, which limits the payload to
// capacity-3 bytes.
func BuildFrame(capacity int, payloadHex string, seal bool) (*packet.Frame, error) {
	payloadHex = strings.ReplaceAll(strings.TrimSpace(payloadHex), " ", "")
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	if seal && len(payload) > packet.ChecksumIndex(capacity)-1 {
		return nil, fmt.Errorf("%w: payload of %d bytes overlaps the checksum slot", packet.ErrOutOfRange, len(payload))
	}
	f, err := packet.FromPayload(capacity, payload)
	if err != nil {
		return nil, err
	}
	if seal {
		f.SealChecksum()
	}
	return f, nil
}

// AttachAdminRoutes mounts the send-frame page, its API, a JSON status
// endpoint, and an SSE tail of received frames. tsweb restricts /debug/ to
// loopback and tailnet callers.
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	AttachAdminRoutesForMux(mux, m, m.checksum)
}

// AttachAdminRoutesForMux mounts the admin routes for any LinkMuxInterface.
func AttachAdminRoutesForMux(mux *http.ServeMux, m LinkMuxInterface, seal bool) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-frame", "send a frame over the link", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		data := struct {
			Capacity   int
			MaxPayload int
		}{Capacity: m.Capacity(), MaxPayload: m.Capacity() - 2}
		if seal {
			data.MaxPayload--
		}
		if err := sendFrameTemplate.Execute(buf, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-frame-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		payload := r.FormValue("payload")
		if strings.TrimSpace(payload) == "" {
			http.Error(w, "Missing payload", http.StatusBadRequest)
			return
		}
		f, err := BuildFrame(m.Capacity(), payload, seal)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := m.SendFrame(f); err != nil {
			http.Error(w, "Failed to send frame", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Sent frame %s", f))
	})

	debug.HandleFunc("link-stats", "framer counters and receive rate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Status()); err != nil {
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
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

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case f, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", f); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
