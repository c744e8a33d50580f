package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/packetlink/internal/db"
	"github.com/banshee-data/packetlink/internal/httputil"
	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/serialport"
)

// LinkConfigRequest is the request body for creating/updating link configs.
type LinkConfigRequest struct {
	Name        string `json:"name"`
	PortPath    string `json:"port_path"`
	BaudRate    int    `json:"baud_rate"`
	DataBits    int    `json:"data_bits"`
	StopBits    int    `json:"stop_bits"`
	Parity      string `json:"parity"`
	Capacity    int    `json:"capacity"`
	Checksum    bool   `json:"checksum"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// toLinkConfig validates the request and fills defaults.
func (req LinkConfigRequest) toLinkConfig(id int) (*db.LinkConfig, string) {
	if req.Name == "" {
		return nil, "Name is required"
	}
	if req.PortPath == "" {
		return nil, "Port path is required"
	}
	if !isValidPortPath(req.PortPath) {
		return nil, "Invalid port path. Must start with /dev/tty or /dev/serial"
	}
	opts, err := serialport.PortOptions{
		BaudRate: req.BaudRate,
		DataBits: req.DataBits,
		StopBits: req.StopBits,
		Parity:   req.Parity,
	}.Normalise()
	if err != nil {
		return nil, err.Error()
	}
	if req.Capacity == 0 {
		req.Capacity = packet.Capacity16
	}
	if err := packet.ValidCapacity(req.Capacity); err != nil {
		return nil, err.Error()
	}
	return &db.LinkConfig{
		ID:          id,
		Name:        req.Name,
		PortPath:    req.PortPath,
		BaudRate:    opts.BaudRate,
		DataBits:    opts.DataBits,
		StopBits:    opts.StopBits,
		Parity:      opts.Parity,
		Capacity:    req.Capacity,
		Checksum:    req.Checksum,
		Enabled:     req.Enabled,
		Description: req.Description,
	}, ""
}

// handleLinkConfigsOrCreate handles GET and POST to /api/links
func (s *Server) handleLinkConfigsOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleLinkConfigs(w, r)
	case http.MethodPost:
		s.handleCreateLinkConfig(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleLinkConfigs handles GET /api/links; ?enabled=true lists only
// enabled links.
func (s *Server) handleLinkConfigs(w http.ResponseWriter, r *http.Request) {
	var configs []db.LinkConfig
	var err error
	if r.URL.Query().Get("enabled") == "true" {
		configs, err = s.db.GetEnabledLinkConfigs()
	} else {
		configs, err = s.db.GetLinkConfigs()
	}
	if err != nil {
		log.Printf("Error fetching link configs: %v", err)
		httputil.InternalServerError(w, "Failed to fetch link configurations")
		return
	}
	if configs == nil {
		configs = []db.LinkConfig{}
	}
	httputil.WriteJSONOK(w, configs)
}

// handleLinkConfigByID handles GET/PUT/DELETE /api/links/:id
func (s *Server) handleLinkConfigByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/links/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		httputil.BadRequest(w, "Missing config ID")
		return
	}
	id, err := strconv.Atoi(pathParts[0])
	if err != nil {
		httputil.BadRequest(w, "Invalid config ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetLinkConfig(w, id)
	case http.MethodPut:
		s.handleUpdateLinkConfig(w, r, id)
	case http.MethodDelete:
		s.handleDeleteLinkConfig(w, id)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleGetLinkConfig(w http.ResponseWriter, id int) {
	config, err := s.db.GetLinkConfig(id)
	if err != nil {
		log.Printf("Error fetching link config %d: %v", id, err)
		httputil.InternalServerError(w, "Failed to fetch link configuration")
		return
	}
	if config == nil {
		httputil.NotFound(w, "Configuration not found")
		return
	}
	httputil.WriteJSONOK(w, config)
}

func (s *Server) handleCreateLinkConfig(w http.ResponseWriter, r *http.Request) {
	var req LinkConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "Invalid request body")
		return
	}
	config, msg := req.toLinkConfig(0)
	if config == nil {
		httputil.BadRequest(w, msg)
		return
	}

	id, err := s.db.CreateLinkConfig(config)
	if err != nil {
		log.Printf("Error creating link config: %v", err)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			httputil.Conflict(w, "Configuration with this name already exists")
			return
		}
		httputil.InternalServerError(w, "Failed to create link configuration")
		return
	}

	created, err := s.db.GetLinkConfig(int(id))
	if err != nil || created == nil {
		log.Printf("Error fetching created config: %v", err)
		httputil.InternalServerError(w, "Configuration created but failed to fetch")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateLinkConfig(w http.ResponseWriter, r *http.Request, id int) {
	var req LinkConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "Invalid request body")
		return
	}
	config, msg := req.toLinkConfig(id)
	if config == nil {
		httputil.BadRequest(w, msg)
		return
	}

	if err := s.db.UpdateLinkConfig(config); err != nil {
		log.Printf("Error updating link config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			httputil.NotFound(w, "Configuration not found")
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			httputil.Conflict(w, "Configuration with this name already exists")
			return
		}
		httputil.InternalServerError(w, "Failed to update link configuration")
		return
	}

	updated, err := s.db.GetLinkConfig(id)
	if err != nil || updated == nil {
		log.Printf("Error fetching updated config: %v", err)
		httputil.InternalServerError(w, "Configuration updated but failed to fetch")
		return
	}
	httputil.WriteJSONOK(w, updated)
}

func (s *Server) handleDeleteLinkConfig(w http.ResponseWriter, id int) {
	if err := s.db.DeleteLinkConfig(id); err != nil {
		log.Printf("Error deleting link config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			httputil.NotFound(w, "Configuration not found")
			return
		}
		httputil.InternalServerError(w, "Failed to delete link configuration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isValidPortPath validates that a port path is in an allowed format
func isValidPortPath(path string) bool {
	return strings.HasPrefix(path, "/dev/tty") || strings.HasPrefix(path, "/dev/serial")
}
