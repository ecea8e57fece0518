package consent

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medaid/consent-trail/internal/httputil"
	"github.com/medaid/consent-trail/pkg/types"
)

// RegisterRoutes mounts the consent lifecycle endpoints
func (m *Manager) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/consent/grant", m.grantHandler).Methods("POST")
	router.HandleFunc("/consent/revoke", m.revokeHandler).Methods("POST")
	router.HandleFunc("/consent/{consentId}", m.getHandler).Methods("GET")
	router.HandleFunc("/consent/{consentId}/valid", m.isValidHandler).Methods("GET")
	router.HandleFunc("/patients/{patientId}/consents", m.findActiveHandler).Methods("GET")
}

// grantHandler handles consent grant requests
func (m *Manager) grantHandler(w http.ResponseWriter, r *http.Request) {
	var req types.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := m.Grant(r.Context(), &req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.JSONResponse(w, result, http.StatusCreated)
}

// revokeHandler handles consent revocation requests
func (m *Manager) revokeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConsentID string `json:"consent_id"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := m.Revoke(r.Context(), req.ConsentID, req.Reason)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.JSONResponse(w, result, http.StatusOK)
}

// getHandler returns the stored grant, revoked ones included
func (m *Manager) getHandler(w http.ResponseWriter, r *http.Request) {
	consentID := mux.Vars(r)["consentId"]

	grant, err := m.GetGrant(r.Context(), consentID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.JSONResponse(w, grant, http.StatusOK)
}

// isValidHandler answers the fast internal validity check
func (m *Manager) isValidHandler(w http.ResponseWriter, r *http.Request) {
	consentID := mux.Vars(r)["consentId"]

	valid, err := m.IsValid(r.Context(), consentID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.JSONResponse(w, map[string]interface{}{
		"consent_id": consentID,
		"valid":      valid,
	}, http.StatusOK)
}

// findActiveHandler lists a patient's active consents for a scope
func (m *Manager) findActiveHandler(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientId"]
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		httputil.JSONError(w, "scope query parameter is required", http.StatusBadRequest)
		return
	}

	grants, err := m.FindActive(r.Context(), patientID, scope)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if grants == nil {
		grants = []*types.ConsentGrant{}
	}

	httputil.JSONResponse(w, grants, http.StatusOK)
}
