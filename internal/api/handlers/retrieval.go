package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/voicerag/internal/api"
	"github.com/cloo-solutions/voicerag/internal/domain"
	"github.com/cloo-solutions/voicerag/internal/service"
)

// maxTopK bounds caller-supplied k so a single request cannot drag the
// whole index through the wire.
const maxTopK = 25

// RetrievalService is the read-side interface of the retrieval index.
type RetrievalService interface {
	Retrieve(ctx context.Context, utterance string, k int) []domain.RetrievedChunk
	IsRelevant(ctx context.Context, utterance string) bool
	State() service.IndexState
	ChunkCount() int
}

// RetrievalHandler serves relevance and top-k retrieval to the
// conversational agent.
type RetrievalHandler struct {
	svc RetrievalService
}

func NewRetrievalHandler(svc RetrievalService) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

type RetrieveRequest struct {
	Utterance string `json:"utterance"`
	K         int    `json:"k,omitempty"`
}

type RetrievedChunkResponse struct {
	ID       string            `json:"id"`
	Category string            `json:"category"`
	Text     string            `json:"text"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type RetrieveResponse struct {
	Results []*RetrievedChunkResponse `json:"results"`
	Count   int                       `json:"count"`
}

type RelevanceRequest struct {
	Utterance string `json:"utterance"`
}

type RelevanceResponse struct {
	Relevant bool `json:"relevant"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	IndexState string `json:"index_state"`
	ChunkCount int    `json:"chunk_count"`
}

// Retrieve handles POST /v1/retrieve
func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		api.Error(w, http.StatusBadRequest, "utterance is required")
		return
	}

	k := req.K
	if k > maxTopK {
		k = maxTopK
	}

	results := h.svc.Retrieve(r.Context(), utterance, k)
	resp := RetrieveResponse{
		Results: make([]*RetrievedChunkResponse, 0, len(results)),
		Count:   len(results),
	}
	for _, rc := range results {
		resp.Results = append(resp.Results, &RetrievedChunkResponse{
			ID:       rc.Chunk.ID,
			Category: string(rc.Chunk.Category),
			Text:     rc.Chunk.Text,
			Score:    rc.Score,
			Metadata: rc.Chunk.Metadata,
		})
	}

	api.Success(w, http.StatusOK, resp)
}

// Relevance handles POST /v1/relevance
func (h *RetrievalHandler) Relevance(w http.ResponseWriter, r *http.Request) {
	var req RelevanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		api.Error(w, http.StatusBadRequest, "utterance is required")
		return
	}

	relevant := h.svc.IsRelevant(r.Context(), utterance)
	api.Success(w, http.StatusOK, RelevanceResponse{Relevant: relevant})
}

// Health handles GET /health
func (h *RetrievalHandler) Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		IndexState: h.svc.State().String(),
		ChunkCount: h.svc.ChunkCount(),
	})
}
