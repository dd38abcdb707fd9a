package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/coastalmapping/vdatum/internal/monitoring"
	"github.com/coastalmapping/vdatum/internal/storage/sqlite"
	"github.com/coastalmapping/vdatum/internal/vdatum/pipeline"
	"github.com/coastalmapping/vdatum/internal/vdatum/transform"
	"github.com/coastalmapping/vdatum/internal/version"
)

// PointResult is the JSON shape of one transformed point. Uncertainty is a
// pointer so out-of-coverage passthrough points render as null rather than
// an unencodable NaN.
type PointResult struct {
	Lon         float64  `json:"lon"`
	Lat         float64  `json:"lat"`
	Height      float64  `json:"height"`
	Uncertainty *float64 `json:"uncertainty"`
	Region      string   `json:"region,omitempty"`
	InCoverage  bool     `json:"in_coverage"`
}

func toPointResult(res transform.Result) PointResult {
	out := PointResult{
		Lon:        res.X,
		Lat:        res.Y,
		Height:     res.Z,
		Region:     res.Region,
		InCoverage: res.InCoverage,
	}
	if !math.IsNaN(res.Uncertainty) {
		u := res.Uncertainty
		out.Uncertainty = &u
	}
	return out
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// errorStatus maps transform failures onto HTTP statuses: caller mistakes
// are 4xx, grid application faults are 5xx.
func errorStatus(err error) int {
	var covErr *transform.CoverageError
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedDatum),
		errors.Is(err, pipeline.ErrNoRegion),
		errors.As(err, &covErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) transformPoint(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'lon' parameter")
		return
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'lat' parameter")
		return
	}
	height := 0.0
	if h := q.Get("height"); h != "" {
		if height, err = strconv.ParseFloat(h, 64); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'height' parameter")
			return
		}
	}
	source, err := pipeline.ParseSpec(q.Get("s_v_frame"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid 's_v_frame': %v", err))
		return
	}
	destination, err := pipeline.ParseSpec(q.Get("t_v_frame"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid 't_v_frame': %v", err))
		return
	}

	batch, err := s.tr.TransformPoints(r.Context(), source, destination,
		[]float64{lon}, []float64{lat}, []float64{height},
		transform.Options{AllowPointsOutsideCoverage: true})
	if err != nil {
		s.writeJSONError(w, errorStatus(err), fmt.Sprintf("Transform failed: %v", err))
		return
	}

	resp := struct {
		PointResult
		Remark string `json:"remark"`
	}{
		PointResult: toPointResult(batch.Results[0]),
		Remark:      batch.CRS.Vertical.Remark.String(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write result")
		return
	}
}

// BatchRequest is the POST /api/transform/points body: parallel coordinate
// slices, heights optional.
type BatchRequest struct {
	SourceFrame  string    `json:"s_v_frame"`
	TargetFrame  string    `json:"t_v_frame"`
	Lon          []float64 `json:"lon"`
	Lat          []float64 `json:"lat"`
	Height       []float64 `json:"height,omitempty"`
	AllowOutside bool      `json:"allow_points_outside_coverage,omitempty"`
}

// BatchResponse carries positional results plus the provenance record.
type BatchResponse struct {
	JobID   string        `json:"job_id,omitempty"`
	Results []PointResult `json:"results"`
	Remark  string        `json:"remark"`
	WKT     string        `json:"wkt"`
}

func (s *Server) transformPoints(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	source, err := pipeline.ParseSpec(req.SourceFrame)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid 's_v_frame': %v", err))
		return
	}
	destination, err := pipeline.ParseSpec(req.TargetFrame)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid 't_v_frame': %v", err))
		return
	}

	start := time.Now()
	batch, err := s.tr.TransformPoints(r.Context(), source, destination,
		req.Lon, req.Lat, req.Height,
		transform.Options{AllowPointsOutsideCoverage: req.AllowOutside})
	if err != nil {
		s.writeJSONError(w, errorStatus(err), fmt.Sprintf("Transform failed: %v", err))
		return
	}

	resp := BatchResponse{
		Results: make([]PointResult, len(batch.Results)),
		Remark:  batch.CRS.Vertical.Remark.String(),
		WKT:     batch.CRS.WKT(),
	}
	outside := int64(0)
	for i, res := range batch.Results {
		resp.Results[i] = toPointResult(res)
		if !res.InCoverage {
			outside++
		}
	}

	if s.db != nil {
		job := &sqlite.Job{
			SourceDatum:   source.String(),
			TargetDatum:   destination.String(),
			Regions:       batch.CRS.Vertical.Remark.Regions,
			Remark:        resp.Remark,
			PointCount:    int64(len(batch.Results)),
			OutOfCoverage: outside,
			Duration:      time.Since(start),
		}
		if err := s.db.RecordJob(job); err != nil {
			monitoring.Logf("api: failed to record job: %v", err)
		} else {
			resp.JobID = job.ID
		}
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write results")
		return
	}
}

// RegionSummary is the JSON shape of one region listing entry.
type RegionSummary struct {
	ID         string  `json:"id"`
	Area       float64 `json:"area_sq_deg"`
	Footprints int     `json:"footprints"`
}

func (s *Server) listRegions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	regions := s.reg.Regions()
	out := make([]RegionSummary, len(regions))
	for i, rg := range regions {
		out[i] = RegionSummary{
			ID:         rg.ID,
			Area:       rg.Area(),
			Footprints: len(rg.Footprints),
		}
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write regions")
		return
	}
}

func (s *Server) listDatums(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	out := map[string]string{
		"datums":  pipeline.SupportedDatums(),
		"version": s.reg.Version(),
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write datums")
		return
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Audit trail not enabled")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	jobs, err := s.db.Jobs(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve jobs: %v", err))
		return
	}
	if jobs == nil {
		jobs = []sqlite.Job{}
	}
	if err := json.NewEncoder(w).Encode(jobs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write jobs")
		return
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"regions": len(s.reg.Regions()),
		"version": s.reg.Version(),
		"build":   version.Version,
	})
}
