package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quartzmem/quartz/internal/engine"
	"github.com/quartzmem/quartz/internal/partition"
	"github.com/quartzmem/quartz/internal/tier"
)

type partitionJSON struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	DepthTag    string    `json:"depth_tag"`
	Position    []float64 `json:"position"`
	Capacity    float64   `json:"capacity"`
	Load        int       `json:"load"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPartitionJSON(p *partition.Partition) partitionJSON {
	return partitionJSON{
		ID:          p.ID,
		ContentType: p.ContentType,
		DepthTag:    p.DepthTag,
		Position:    p.Position,
		Capacity:    p.Capacity,
		Load:        p.Load(),
		CreatedAt:   p.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content       string     `json:"content"`
		Quality       [4]float64 `json:"quality"`
		DepthTag      string     `json:"depth_tag"`
		PartitionHint string     `json:"partition_hint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DepthTag == "" {
		req.DepthTag = "surface"
	}

	res, err := s.engine.Store(r.Context(), []byte(req.Content), engine.QualityVector(req.Quality), req.DepthTag, req.PartitionHint)
	switch {
	case errors.Is(err, engine.ErrInvalidQuality):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, partition.ErrPartitionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, partition.ErrNoEligiblePartition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error().Err(err).Msg("store failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"fingerprint":  res.Fingerprint,
		"partition_id": res.PartitionID,
		"importance":   res.Importance,
		"persistent":   res.Persistent,
	})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")

	res, err := s.engine.Retrieve(r.Context(), fp)
	if err != nil {
		s.log.Error().Err(err).Str("fingerprint", fp).Msg("retrieve failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payload":      string(res.Payload),
		"access_count": res.AccessCount,
	})
}

func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	out := make([]partitionJSON, len(all))
	for i, p := range all {
		out[i] = toPartitionJSON(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(out),
		"partitions": out,
	})
}

func (s *Server) handleCreatePartition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContentType string `json:"content_type"`
		DepthTag    string `json:"depth_tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ContentType == "" || req.DepthTag == "" {
		writeError(w, http.StatusBadRequest, "content_type and depth_tag required")
		return
	}

	p := s.registry.Create(req.ContentType, req.DepthTag)
	writeJSON(w, http.StatusCreated, toPartitionJSON(p))
}

func (s *Server) handleSelectPartition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContentType string `json:"content_type"`
		DepthTag    string `json:"depth_tag"`
		SizeHint    int    `json:"size_hint"`
		ReferenceID string `json:"reference_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	p, err := s.registry.SelectOptimalSpiral(req.ContentType, req.DepthTag, req.SizeHint, req.ReferenceID)
	switch {
	case errors.Is(err, partition.ErrNoEligiblePartition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, partition.ErrPartitionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toPartitionJSON(p))
}

func (s *Server) handleListCrystals(w http.ResponseWriter, r *http.Request) {
	type crystalJSON struct {
		ID                 string    `json:"id"`
		SourceFingerprint  string    `json:"source_fingerprint,omitempty"`
		MemberFingerprints []string  `json:"member_fingerprints,omitempty"`
		StabilityScore     float64   `json:"stability_score"`
		CreatedAt          time.Time `json:"created_at"`
	}

	crystals := s.engine.Crystals().All()
	out := make([]crystalJSON, len(crystals))
	for i, c := range crystals {
		out[i] = crystalJSON{
			ID:                 c.ID,
			SourceFingerprint:  c.SourceFingerprint,
			MemberFingerprints: c.MemberFingerprints,
			StabilityScore:     c.StabilityScore,
			CreatedAt:          c.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(out),
		"crystals": out,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"entries":    s.engine.EntryCount(),
		"partitions": s.registry.Count(),
		"crystals":   s.engine.Crystals().Count(),
	}

	if policy := s.engine.TierPolicy(); policy != nil {
		dist := policy.Distribution()
		tiers := make(map[string]int, len(tier.Tiers))
		for _, t := range tier.Tiers {
			tiers[t.String()] = dist[t]
		}
		stats["tiers"] = tiers
	}

	writeJSON(w, http.StatusOK, stats)
}
