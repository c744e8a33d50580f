package api

import (
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/banshee-data/packetlink/internal/db"
	"github.com/banshee-data/packetlink/internal/httputil"
	"github.com/banshee-data/packetlink/internal/linkmux"
)

// SendFrameRequest is the body of POST /api/link/frames.
type SendFrameRequest struct {
	Payload string `json:"payload"` // hex
}

// FrameResponse is a frame-log row with the frame rendered as hex.
type FrameResponse struct {
	ID         int64        `json:"id"`
	SessionID  string       `json:"session_id"`
	Direction  db.Direction `json:"direction"`
	Capacity   int          `json:"capacity"`
	Hex        string       `json:"hex"`
	RecordedAt int64        `json:"recorded_at"`
}

func (s *Server) showLinkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.link.Status())
}

// sendFrame handles POST /api/link/frames.
func (s *Server) sendFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req SendFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "Invalid request body")
		return
	}
	f, err := linkmux.BuildFrame(s.link.Capacity(), req.Payload, s.seal)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.link.SendFrame(f); err != nil {
		log.Printf("Error sending frame: %v", err)
		httputil.InternalServerError(w, "Failed to send frame")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"hex": f.String()})
}

// listFrames handles GET /api/frames?limit=N.
func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > s.maxLimit {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := s.db.RecentFrames(limit)
	if err != nil {
		log.Printf("Error fetching frames: %v", err)
		httputil.InternalServerError(w, "Failed to fetch frames")
		return
	}
	out := make([]FrameResponse, len(records))
	for i, rec := range records {
		out[i] = FrameResponse{
			ID:         rec.ID,
			SessionID:  rec.SessionID,
			Direction:  rec.Direction,
			Capacity:   rec.Capacity,
			Hex:        hex.EncodeToString(rec.Data),
			RecordedAt: rec.RecordedAt,
		}
	}
	httputil.WriteJSONOK(w, out)
}

// showFrameCounts handles GET /api/frames/counts?session=ID. The session
// defaults to the running one.
func (s *Server) showFrameCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	session := r.URL.Query().Get("session")
	if session == "" {
		session = s.session
	}
	counts, err := s.db.FrameCounts(session)
	if err != nil {
		log.Printf("Error counting frames: %v", err)
		httputil.InternalServerError(w, "Failed to count frames")
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"session_id": session,
		"rx":         counts[db.DirectionRx],
		"tx":         counts[db.DirectionTx],
	})
}
