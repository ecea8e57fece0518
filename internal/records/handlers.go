package records

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medaid/consent-trail/internal/httputil"
	"github.com/medaid/consent-trail/pkg/types"
)

// RegisterRoutes mounts the record event endpoints
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/records/{recordId}/uploads", s.uploadHandler).Methods("POST")
	router.HandleFunc("/records/{recordId}/views", s.viewHandler).Methods("POST")
	router.HandleFunc("/records/{recordId}/events", s.historyHandler).Methods("GET")
}

// uploadHandler logs a record upload event
func (s *Service) uploadHandler(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["recordId"]

	var req struct {
		UploaderID   string `json:"uploader_id"`
		UploaderRole string `json:"uploader_role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.LogUpload(r.Context(), recordID, types.RoleKind(req.UploaderRole), req.UploaderID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.JSONResponse(w, result, http.StatusCreated)
}

// viewHandler logs a record view event
func (s *Service) viewHandler(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["recordId"]

	var req struct {
		ViewerID     string `json:"viewer_id"`
		AccessReason string `json:"access_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.LogView(r.Context(), req.ViewerID, recordID, req.AccessReason)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.JSONResponse(w, result, http.StatusCreated)
}

// historyHandler returns the internal event log of a record
func (s *Service) historyHandler(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["recordId"]

	events, err := s.GetHistory(r.Context(), recordID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if events == nil {
		events = []*types.RecordEvent{}
	}

	httputil.JSONResponse(w, events, http.StatusOK)
}
