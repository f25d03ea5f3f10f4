package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type registerDeviceRequest struct {
	Name string `json:"name"`
}

type registerDeviceResponse struct {
	Device deviceView `json:"device"`
	Key    string     `json:"key"`
}

type binFullRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	device, key, err := s.svc.RegisterDevice(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerDeviceResponse{Device: toDeviceView(device), Key: key})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.svc.ListDevices(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]deviceView, 0, len(devices))
	for _, device := range devices {
		out = append(out, toDeviceView(device))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RevokeDevice(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "device revoked"})
}

func (s *Server) handleBinFull(w http.ResponseWriter, r *http.Request) {
	var req binFullRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	device, _ := deviceFromContext(r.Context())
	s.svc.NotifyBinFull(r.Context(), device, req.Message)
	writeJSON(w, http.StatusOK, map[string]string{"message": "notification sent"})
}
