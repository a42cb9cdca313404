package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/source"
	"finscope/internal/timeline"
	"finscope/internal/timeline/breakdown"
	"finscope/internal/timeline/chart"
	"finscope/internal/timeline/hover"
	"finscope/internal/timeline/period"
	"finscope/internal/timeline/zoom"
)

const maxBodyBytes = 64 << 10

type (
	timelineResponse struct {
		Version     uint64         `json:"version"`
		Granularity string         `json:"granularity"`
		ZoomLevel   int            `json:"zoom_level"`
		Window      zoom.Window    `json:"window"`
		Periods     []int64        `json:"periods"`
		Series      []chart.Series `json:"series"`
		Options     chart.Options  `json:"options"`
		Pinned      *int           `json:"pinned,omitempty"`
	}

	lineResponse struct {
		Name         string  `json:"name"`
		MainCategory string  `json:"main_category"`
		Color        string  `json:"color"`
		Amount       float64 `json:"amount"`
	}

	detailResponse struct {
		Key          string         `json:"key"`
		Start        time.Time      `json:"start"`
		Income       float64        `json:"income"`
		Expenses     float64        `json:"expenses"`
		TransfersIn  float64        `json:"transfers_in"`
		TransfersOut float64        `json:"transfers_out"`
		Net          float64        `json:"net"`
		Lines        []lineResponse `json:"lines"`
	}

	hoverResponse struct {
		Period  int              `json:"period"`
		Pinned  bool             `json:"pinned"`
		Details []detailResponse `json:"details"`
	}

	modeRequest struct {
		Mode string `json:"mode"`
	}

	keysRequest struct {
		Keys []string `json:"keys"`
	}

	windowRequest struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}

	granularityRequest struct {
		Granularity string `json:"granularity"`
	}
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).String(),
	})
}

// handleReady reports ready once a dataset is loaded and every probe passes
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.store.Loaded() {
		checks["dataset"] = "ok"
	} else {
		checks["dataset"] = "not_loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			checks[c.Name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}
	checks["sessions"] = s.sessions.Size()

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	writeJSON(w, http.StatusOK, timelineOf(v))
}

func timelineOf(v *timeline.View) timelineResponse {
	snap := v.Snapshot()
	starts := period.Starts(snap.Buckets)
	periods := make([]int64, len(starts))
	for i, start := range starts {
		periods[i] = start.UnixMilli()
	}
	resp := timelineResponse{
		Version:     snap.Version,
		Granularity: snap.Granularity.String(),
		ZoomLevel:   snap.ZoomLevel,
		Window:      snap.Window,
		Periods:     periods,
		Series:      chart.Bars(snap.Series),
		Options:     chart.OptionsFor(snap.Window, snap.Range),
	}
	if idx, ok := v.Pinned(); ok {
		resp.Pinned = &idx
	}
	return resp
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	writeJSON(w, http.StatusOK, v.Categories())
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	writeJSON(w, http.StatusOK, v.Breakdown())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	sum := v.Summary()
	resp := map[string]any{
		"version":      v.Version(),
		"transactions": sum.Count,
	}
	if sum.Count > 0 {
		resp["first"] = sum.First
		resp["last"] = sum.Last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleToggle flips one node. Toggles only mark state; the pipeline runs on
// the next timeline read.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing node id")
		return
	}

	switch r.PathValue("kind") {
	case "type":
		v.ToggleType(id)
	case "category":
		v.ToggleCategory(id)
	case "subcategory":
		v.ToggleSubcategory(id)
	case "expanded":
		v.ToggleExpanded(id)
	default:
		writeError(w, http.StatusNotFound, "unknown visibility kind "+strconv.Quote(r.PathValue("kind")))
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Visibility toggled",
		log.FieldOperation, log.OpToggle,
		"kind", r.PathValue("kind"),
		"id", id)
	writeJSON(w, http.StatusOK, v.Categories())
}

func (s *Server) handleVisibilityAll(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	switch r.PathValue("action") {
	case "show-all":
		v.ShowAll()
	case "hide-all":
		v.HideAll()
	default:
		writeError(w, http.StatusNotFound, "unknown visibility action "+strconv.Quote(r.PathValue("action")))
		return
	}
	writeJSON(w, http.StatusOK, v.Categories())
}

func (s *Server) handleBreakdownMode(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	var req modeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := breakdown.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v.SetBreakdownMode(mode)
	writeJSON(w, http.StatusOK, v.Breakdown())
}

func (s *Server) handleBreakdownOwners(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	var req keysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v.SetSelectedOwners(req.Keys)
	writeJSON(w, http.StatusOK, v.Breakdown())
}

func (s *Server) handleBreakdownAccounts(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	var req keysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v.SetSelectedAccounts(req.Keys)
	writeJSON(w, http.StatusOK, v.Breakdown())
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	switch r.PathValue("direction") {
	case "in":
		v.ZoomIn()
	case "out":
		v.ZoomOut()
	case "reset":
		v.ResetZoom()
	default:
		writeError(w, http.StatusNotFound, "unknown zoom direction "+strconv.Quote(r.PathValue("direction")))
		return
	}
	writeJSON(w, http.StatusOK, timelineOf(v))
}

func (s *Server) handleGranularity(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	var req granularityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := period.ParseGranularity(req.Granularity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v.SetGranularity(g)
	writeJSON(w, http.StatusOK, timelineOf(v))
}

// handleWindow sets a custom window. An empty start and end restores the
// zoom level's window policy.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	var req windowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Start) == "" && strings.TrimSpace(req.End) == "" {
		v.SetWindow(zoom.Window{})
		writeJSON(w, http.StatusOK, timelineOf(v))
		return
	}

	start, err := source.ParseDate(req.Start, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := source.ParseDate(req.End, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "window end must be after start")
		return
	}
	v.SetWindow(zoom.Window{Start: start, End: end})
	writeJSON(w, http.StatusOK, timelineOf(v))
}

// handleHover resolves a period by index (?period=) or by any date inside
// it (?date=).
func (s *Server) handleHover(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	index, err := s.hoverIndex(r, v)
	if errors.Is(err, timeline.ErrPeriodOutOfRange) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := v.Hover(index)
	if errors.Is(err, timeline.ErrPeriodOutOfRange) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.slog.LogError(r.Context(), "Hover failed", err, log.ComponentTimeline, log.OpHover, nil)
		writeError(w, http.StatusInternalServerError, "hover failed")
		return
	}

	resp := hoverResponse{Period: index, Details: detailsOf(details)}
	if pinned, ok := v.Pinned(); ok {
		resp.Period = pinned
		resp.Pinned = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) hoverIndex(r *http.Request, v *timeline.View) (int, error) {
	q := r.URL.Query()
	if date := strings.TrimSpace(q.Get("date")); date != "" {
		t, err := source.ParseDate(date, s.loc)
		if err != nil {
			return 0, fmt.Errorf("invalid date: %w", err)
		}
		return v.PeriodIndex(t)
	}
	index, err := strconv.Atoi(strings.TrimSpace(q.Get("period")))
	if err != nil {
		return 0, errors.New("period must be an integer index")
	}
	return index, nil
}

func detailsOf(details map[string]hover.Detail) []detailResponse {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]detailResponse, 0, len(keys))
	for _, k := range keys {
		d := details[k]
		lines := make([]lineResponse, len(d.Lines))
		for i, l := range d.Lines {
			lines[i] = lineResponse{
				Name:         l.Name,
				MainCategory: l.MainCategory.String(),
				Color:        l.Color,
				Amount:       core.Float(l.Amount),
			}
		}
		out = append(out, detailResponse{
			Key:          d.Key,
			Start:        d.Start,
			Income:       core.Float(d.Totals.Income),
			Expenses:     core.Float(d.Totals.Expenses),
			TransfersIn:  core.Float(d.Totals.TransfersIn),
			TransfersOut: core.Float(d.Totals.TransfersOut),
			Net:          core.Float(d.Net),
			Lines:        lines,
		})
	}
	return out
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	if err := v.Pin(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	idx, _ := v.Pinned()
	writeJSON(w, http.StatusOK, map[string]any{"pinned": true, "period": idx})
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request, v *timeline.View) {
	v.Unpin()
	writeJSON(w, http.StatusOK, map[string]any{"pinned": false})
}

// handleReload re-reads the source. Every session picks up the new dataset
// through the store subscription.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	ds, err := s.store.Reload(ctx)
	if err != nil {
		s.slog.LogError(r.Context(), "Dataset reload failed", err, log.ComponentDataset, log.OpReload, nil)
		writeError(w, http.StatusBadGateway, "reload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":      ds.Version,
		"transactions": len(ds.Transactions),
		"loaded_at":    ds.LoadedAt,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
