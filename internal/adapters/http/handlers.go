package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/kb-retrieval/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type searchRequest struct {
	Query        string `json:"query"`
	Limit        int    `json:"limit"`
	Preset       string `json:"preset"`
	Category     string `json:"category"`
	Manufacturer string `json:"manufacturer"`
}

type searchResponse struct {
	Query   string                  `json:"query"`
	Results []domain.RerankedResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	filter := domain.SearchFilter{Category: req.Category, Manufacturer: req.Manufacturer}
	results, err := s.search.Search(r.Context(), req.Query, req.Limit, req.Preset, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.RerankedResult{}
	}
	if s.metrics != nil {
		s.metrics.RecordSearch(serviceName, "/v1/search", req.Preset, len(results), time.Since(start))
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results})
}

type answerRequest struct {
	Query        string `json:"query"`
	Kind         string `json:"kind"`
	Category     string `json:"category"`
	Manufacturer string `json:"manufacturer"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	filter := domain.SearchFilter{Category: req.Category, Manufacturer: req.Manufacturer}
	answer, err := s.answers.Answer(r.Context(), req.Query, req.Kind, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordAnswer(serviceName, string(answer.AnswerType))
	}
	writeJSON(w, http.StatusOK, answer)
}

type feedbackRequest struct {
	// Field rejection.
	Field        string `json:"field,omitempty"`
	WrongValue   string `json:"wrong_value,omitempty"`
	CorrectValue string `json:"correct_value,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// Answer downvote.
	Query      string  `json:"query,omitempty"`
	BadAnswer  string  `json:"bad_answer,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Query != "" && req.BadAnswer != "":
		err = s.feedback.RecordAnswerFeedback(r.Context(), req.Query, req.BadAnswer, req.Confidence)
	case req.Field != "":
		err = s.feedback.RecordRejection(r.Context(), req.Field, req.WrongValue, req.CorrectValue, req.Reason)
	default:
		s.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "feedback",
			errInvalidBody("either field rejection or answer downvote is required")))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

type indexRequest struct {
	Items []domain.EmbeddingItem `json:"items"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.indexer.EnqueueItems(r.Context(), req.Items); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "enqueued",
		"count":  len(req.Items),
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	s.caches.Invalidate()
	s.logger.Info("cache_invalidated", "request_id", requestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.caches.Stats()
	if s.metrics != nil {
		for name, st := range stats {
			s.metrics.RecordCacheStats(serviceName, name, st.HitRate, st.Size)
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body", requestIDFromContext(r.Context())))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
