package verify

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medaid/consent-trail/internal/httputil"
)

// RegisterRoutes mounts the verification endpoints
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/verify/consents/{consentId}", s.consentProofHandler).Methods("GET")
	router.HandleFunc("/verify/consents/{consentId}/valid", s.consentValidHandler).Methods("GET")
	router.HandleFunc("/verify/records/{recordId}", s.recordProofHandler).Methods("GET")
	router.HandleFunc("/verify/records/{recordId}/views", s.viewCountHandler).Methods("GET")
	router.HandleFunc("/verify/stats", s.statsHandler).Methods("GET")
}

func (s *Service) consentProofHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.GetConsentProof(r.Context(), mux.Vars(r)["consentId"])
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.JSONResponse(w, result, http.StatusOK)
}

func (s *Service) consentValidHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.IsConsentValid(r.Context(), mux.Vars(r)["consentId"])
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.JSONResponse(w, result, http.StatusOK)
}

func (s *Service) recordProofHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.GetRecordProof(r.Context(), mux.Vars(r)["recordId"])
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.JSONResponse(w, result, http.StatusOK)
}

func (s *Service) viewCountHandler(w http.ResponseWriter, r *http.Request) {
	count, notarized, err := s.GetViewCount(r.Context(), mux.Vars(r)["recordId"])
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.JSONResponse(w, map[string]interface{}{
		"record_id":  mux.Vars(r)["recordId"],
		"view_count": count,
		"notarized":  notarized,
	}, http.StatusOK)
}

func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.GetAggregateStats(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.JSONResponse(w, result, http.StatusOK)
}
