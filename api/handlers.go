package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/assistant"
	"github.com/neuron-labs/marketd/catalog"
)

// Version is the service version reported by /version
const Version = "1.0.0"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if !s.deps.Aggregator.LoadedAt().IsZero() {
		response["feed_loaded_at"] = s.deps.Aggregator.LoadedAt().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "marketd",
		"version": Version,
	})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	listings, err := s.deps.Aggregator.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("failed to load listings", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load listings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
	})
}

func (s *Server) parseTokenID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "tokenID")
	tokenID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || tokenID == 0 {
		writeError(w, http.StatusBadRequest, "invalid token ID")
		return 0, false
	}
	return tokenID, true
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := s.parseTokenID(w, r)
	if !ok {
		return
	}

	listing, err := s.deps.Aggregator.Listing(r.Context(), tokenID)
	if err != nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sequencer == nil {
		writeError(w, http.StatusServiceUnavailable, "purchasing is not configured")
		return
	}

	tokenID, ok := s.parseTokenID(w, r)
	if !ok {
		return
	}

	listing, err := s.deps.Aggregator.Listing(r.Context(), tokenID)
	if err != nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	result, err := s.deps.Sequencer.Run(r.Context(), listing)
	if err != nil {
		s.logger.Error("purchase failed",
			zap.Uint64("token_id", tokenID),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "purchase failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"receipt":  result.Receipt,
		"filePath": result.FilePath,
	})
}

// contractResponse is the contract detail view payload. SourceNotice
// is set when the source service could not be reached; the catalog
// material is still served.
type contractResponse struct {
	Contract     catalog.Record   `json:"contract"`
	Preview      *catalog.Preview `json:"preview,omitempty"`
	SourceNotice string           `json:"sourceNotice,omitempty"`
}

func (s *Server) lookupContract(w http.ResponseWriter, r *http.Request) (catalog.Record, bool) {
	identifier := chi.URLParam(r, "author") + "/" + chi.URLParam(r, "slug")

	rec, err := s.deps.Catalog.Lookup(identifier)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contract not found")
		} else {
			writeError(w, http.StatusInternalServerError, "catalog lookup failed")
		}
		return catalog.Record{}, false
	}
	return rec, true
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupContract(w, r)
	if !ok {
		return
	}

	response := contractResponse{Contract: rec}

	if s.deps.Source != nil {
		source, err := s.deps.Source.FetchSource(r.Context(), rec.Path)
		if err != nil {
			// the detail view still renders without source
			s.logger.Warn("source fetch failed",
				zap.String("path", rec.Path),
				zap.Error(err))
			response.SourceNotice = "contract source is temporarily unavailable"
		} else {
			preview := catalog.BuildPreview(source)
			response.Preview = &preview
		}
	}

	writeJSON(w, http.StatusOK, response)
}

type askRequest struct {
	Question string `json:"question"`
}

// Validate implements request validation for askRequest
func (a askRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Question, validation.Required, validation.Length(1, 2000)),
	)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil || s.deps.Source == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}

	rec, ok := s.lookupContract(w, r)
	if !ok {
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	source, err := s.deps.Source.FetchSource(r.Context(), rec.Path)
	if err != nil {
		s.logger.Warn("source fetch failed for question",
			zap.String("path", rec.Path),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "contract source is unavailable")
		return
	}

	answer, err := s.deps.Assistant.Ask(r.Context(), req.Question, source, rec)
	switch {
	case errors.Is(err, assistant.ErrBlankQuestion):
		writeError(w, http.StatusBadRequest, "question cannot be blank")
	case errors.Is(err, assistant.ErrBusy):
		writeError(w, http.StatusConflict, "a question is already being answered")
	case err != nil:
		s.logger.Error("assistant request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "assistant request failed")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
	}
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Receipts == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt store is not configured")
		return
	}

	receipts, err := s.deps.Receipts.ListReceipts(r.Context())
	if err != nil {
		s.logger.Error("failed to list receipts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": receipts})
}

func (s *Server) handlePendingReceipts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Receipts == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt store is not configured")
		return
	}

	receipts, err := s.deps.Receipts.PendingReceipts(r.Context())
	if err != nil {
		s.logger.Error("failed to list pending receipts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pending receipts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": receipts})
}
