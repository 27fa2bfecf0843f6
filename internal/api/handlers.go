package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/doridoridoriand/ipwatch/internal/auth"
	"github.com/doridoridoriand/ipwatch/internal/registry"
)

type addRequest struct {
	Password string `json:"password"`
	IP       string `json:"ip"`
	Name     string `json:"name"`
}

type removeRequest struct {
	Password string `json:"password"`
	IP       string `json:"ip"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleListIPs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Targets())
}

func (s *Server) handleAddIP(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == "" || req.IP == "" {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Message: "Password and IP required"})
		return
	}
	err := s.service.Add(req.IP, req.Name, req.Password)
	s.respondMutation(w, r, "add", req.IP, err)
}

func (s *Server) handleRemoveIP(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == "" || req.IP == "" {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Message: "Password and IP required"})
		return
	}
	err := s.service.Remove(req.IP, req.Password)
	s.respondMutation(w, r, "remove", req.IP, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Message: "Invalid request body"})
		return false
	}
	return true
}

func (s *Server) respondMutation(w http.ResponseWriter, r *http.Request, action, address string, err error) {
	status, message := mutationStatus(err)
	fields := map[string]interface{}{
		"request_id": RequestID(r.Context()),
		"action":     action,
		"address":    address,
		"status":     status,
	}
	switch {
	case err == nil:
		s.logger.Info("target mutation", fields)
		writeJSON(w, http.StatusOK, mutationResponse{Success: true})
		return
	case status == http.StatusInternalServerError:
		s.logger.LogError("api", err, fields)
	default:
		fields["reason"] = message
		s.logger.Warn("target mutation rejected", fields)
	}
	writeJSON(w, status, mutationResponse{Message: message})
}

// mutationStatus maps mutation errors to a status code and client message.
func mutationStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, auth.ErrAuthFailure):
		return http.StatusUnauthorized, "Invalid password"
	case errors.Is(err, registry.ErrInvalidAddress):
		return http.StatusBadRequest, "Invalid IP format"
	case errors.Is(err, registry.ErrDuplicate):
		return http.StatusConflict, "IP already exists"
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "IP not found"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
