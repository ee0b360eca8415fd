package main

import (
	"encoding/json"
	"net/http"
	"time"

	gatewaycore "github.com/ShabariRepo/bonito-sub002"
	"github.com/ShabariRepo/bonito-sub002/internal/bonitoerr"
	"github.com/ShabariRepo/bonito-sub002/internal/pipeline"
	"github.com/ShabariRepo/bonito-sub002/internal/routing"
	"github.com/ShabariRepo/bonito-sub002/providers"
)

// embeddingsHandler handles POST /v1/embeddings. When an Authorization
// bearer key is present and a control plane is wired, the request runs
// through pipeline.Core.Authorize first (spec §1's single authenticated
// entry point) and dispatches to the first ordered candidate that
// implements EmbeddingProvider. Without either, it falls back to the
// library-level Gateway's own routing, the same as chat completions.
func embeddingsHandler(registry *providers.Registry, gw *gatewaycore.Gateway, cp *controlPlane) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.EmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
			return
		}
		if req.Model == "" {
			writeOpenAIError(w, http.StatusBadRequest, "model is required", "invalid_request_error")
			return
		}
		if req.Input == nil {
			writeOpenAIError(w, http.StatusBadRequest, "input is required", "invalid_request_error")
			return
		}

		if bearer := r.Header.Get("Authorization"); bearer != "" && cp != nil {
			az, err := cp.Core.Authorize(r.Context(), bearer, req.Model, 0, 0)
			if err != nil {
				writeCategorizedError(w, r, err)
				return
			}
			providerID, ok := firstEmbeddingCandidate(registry, az.Ordered)
			if !ok {
				writeCategorizedError(w, r, bonitoerr.New(bonitoerr.KindNotFound, "no embedding-capable provider for model: "+req.Model))
				return
			}
			embedder := mustEmbeddingProvider(registry, providerID)

			start := time.Now()
			resp, err := embedder.Embed(r.Context(), req)
			if err != nil {
				cp.Core.RecordOutcome(*az, req.Model, providerID, time.Since(start), providers.Usage{}, err.Error())
				writeCategorizedError(w, r, pipeline.ClassifyUpstreamError(err))
				return
			}
			cp.Core.RecordOutcome(*az, req.Model, providerID, time.Since(start),
				providers.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: 0, TotalTokens: resp.Usage.TotalTokens}, "")

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
			return
		}

		resp, err := gw.Embed(r.Context(), req)
		if err != nil {
			writeOpenAIError(w, http.StatusInternalServerError, err.Error(), "server_error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func firstEmbeddingCandidate(registry *providers.Registry, ordered []routing.Candidate) (string, bool) {
	for _, cand := range ordered {
		p, ok := registry.Get(cand.ProviderID)
		if !ok {
			continue
		}
		if _, ok := p.(providers.EmbeddingProvider); ok {
			return cand.ProviderID, true
		}
	}
	return "", false
}

func mustEmbeddingProvider(registry *providers.Registry, providerID string) providers.EmbeddingProvider {
	p, _ := registry.Get(providerID)
	return p.(providers.EmbeddingProvider)
}
