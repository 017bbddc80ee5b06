package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamsxin/ramnotify/config"
	"github.com/dreamsxin/ramnotify/monitor"
	"github.com/dreamsxin/ramnotify/processlist"
	"github.com/dreamsxin/ramnotify/types"
)

const (
	defaultHistoryCount = 60
	contentType         = "application/json"
)

// Server exposes the engine to a presentation layer over HTTP
type Server struct {
	engine    *monitor.Engine
	processes *processlist.ProcessList
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// New creates the HTTP surface. processes and gatherer may be nil,
// in which case their routes are not mounted.
func New(engine *monitor.Engine, processes *processlist.ProcessList, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		processes: processes,
		gatherer:  gatherer,
		logger:    logger,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/update", s.handleUpdate)
		r.Put("/visible", s.handleVisible)
		r.Get("/history", s.handleHistory)
		r.Get("/chart", s.handleChart)

		r.Get("/config", s.handleConfig)
		r.Get("/presets", s.handlePresets)
		r.Put("/settings", s.handleSettings)
		r.Put("/thresholds/{resource}", s.handleThreshold)
		r.Post("/apply", s.handleApply)
		r.Post("/cancel", s.handleCancel)
		r.Post("/commands/{resource}/run", s.handleRunCommand)

		if s.processes != nil {
			r.Route("/processes", func(r chi.Router) {
				r.Get("/", s.handleProcesses)
				r.Post("/refresh", s.handleRefresh)
				r.Post("/sort", s.handleSort)
				r.Get("/find", s.handleFind)
			})
		}
	})

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// handleStatus 返回最近一次采样状态
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleUpdate samples immediately
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.ForceUpdate(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.engine.SetVisible(req.Visible)
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory 返回历史数据
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	count, err := readCount(r)
	if err != nil {
		http.Error(w, "Invalid count parameter", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.History().GetHistory(count))
}

// handleChart 返回图表数据
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	count, err := readCount(r)
	if err != nil {
		http.Error(w, "Invalid count parameter", http.StatusBadRequest)
		return
	}
	chartData, err := s.engine.History().GetChartData(count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chartData)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	_, refreshIdx := config.Nearest(cfg.RefreshRateMS, config.RefreshPresets)
	_, coolIdx := config.Nearest(cfg.NotifyCoolMS, config.NotifyCooldownPresets)
	writeJSON(w, http.StatusOK, map[string]any{
		"refresh_rate_ms":    config.RefreshPresets,
		"refresh_rate_index": refreshIdx,
		"notify_cool_ms":     config.NotifyCooldownPresets,
		"notify_cool_index":  coolIdx,
	})
}

type settingsReq struct {
	RefreshRateMS     *int            `json:"refresh_rate_ms"`
	NotifyCoolMS      *int            `json:"notify_cool_ms"`
	TaskBarIcon       *types.IconMode `json:"task_bar_icon"`
	EnableProcessList *bool           `json:"enable_processlist_app"`
	CustomSize        *bool           `json:"custom_size"`
	CustomSizeMax     *int            `json:"custom_size_max"`
}

// handleSettings edits the global settings; nothing is saved until apply
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.RefreshRateMS != nil {
		s.engine.SetRefreshRate(*req.RefreshRateMS)
	}
	if req.NotifyCoolMS != nil {
		s.engine.SetNotifyCooldown(*req.NotifyCoolMS)
	}
	if req.TaskBarIcon != nil {
		s.engine.SetIconMode(*req.TaskBarIcon)
	}
	if req.EnableProcessList != nil {
		s.engine.SetProcessListEnabled(*req.EnableProcessList)
	}
	if req.CustomSize != nil || req.CustomSizeMax != nil {
		swap := s.engine.Config().Swap
		if req.CustomSize != nil {
			swap.CustomSize = *req.CustomSize
		}
		if req.CustomSizeMax != nil {
			swap.CustomSizeMax = *req.CustomSizeMax
		}
		s.engine.SetSwapCustomCap(swap.CustomSize, swap.CustomSizeMax)
	}
	writeJSON(w, http.StatusOK, s.engine.Config())
}

type thresholdReq struct {
	Percent       *int    `json:"percentage"`
	Notify        *bool   `json:"notify"`
	CallCommand   *bool   `json:"call_command"`
	Command       *string `json:"command"`
	CommandDelay  *int    `json:"command_call_delay"`
	CommandRepeat *int    `json:"command_call_repeat"`
}

// handleThreshold edits one resource's threshold settings
func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	res, ok := parseResource(chi.URLParam(r, "resource"))
	if !ok {
		http.Error(w, "Unknown resource", http.StatusNotFound)
		return
	}
	var req thresholdReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Percent != nil {
		s.engine.SetThresholdPercent(res, *req.Percent)
	}
	if req.Notify != nil {
		s.engine.SetNotify(res, *req.Notify)
	}
	if req.CallCommand != nil {
		s.engine.SetCommandEnabled(res, *req.CallCommand)
	}
	if req.Command != nil {
		s.engine.SetCommand(res, *req.Command)
	}
	if req.CommandDelay != nil {
		s.engine.SetCommandDelay(res, *req.CommandDelay)
	}
	if req.CommandRepeat != nil {
		s.engine.SetCommandRepeat(res, *req.CommandRepeat)
	}
	writeJSON(w, http.StatusOK, s.engine.Config().Threshold(res))
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Apply(); err != nil {
		s.logger.Error("failed to apply settings", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(); err != nil {
		s.logger.Error("failed to reload settings", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Config())
}

// handleRunCommand starts the command now; an empty body runs the configured one
func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	res, ok := parseResource(chi.URLParam(r, "resource"))
	if !ok {
		http.Error(w, "Unknown resource", http.StatusNotFound)
		return
	}
	var req struct {
		Command string `json:"command"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if !s.engine.RunCommandNow(res, req.Command) {
		http.Error(w, "command is running or empty", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

type processesResp struct {
	Rows       []types.ProcessRow `json:"rows"`
	Sort       string             `json:"sort"`
	Descending bool               `json:"descending"`
	Selected   int                `json:"selected"`
	Scanning   bool               `json:"scanning"`
	Scanned    int                `json:"scanned"`
}

// handleProcesses 返回进程表
func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	table := s.processes.Table()
	key, desc := table.SortOrder()
	selected := -1
	if _, idx, ok := table.Selected(); ok {
		selected = idx
	}
	writeJSON(w, http.StatusOK, processesResp{
		Rows:       table.Rows(),
		Sort:       key.String(),
		Descending: desc,
		Selected:   selected,
		Scanning:   s.processes.Scanning(),
		Scanned:    s.processes.Scanned(),
	})
}

// handleRefresh starts a background scan
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.processes.RefreshAsync(context.WithoutCancel(r.Context()), nil, nil)
	if errors.Is(err, processlist.ErrScanInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleSort orders the table; without an explicit direction it behaves like a header click
func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Column     string `json:"column"`
		Descending *bool  `json:"descending"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	key, ok := types.ParseSortKey(req.Column)
	if !ok {
		http.Error(w, "Unknown column", http.StatusBadRequest)
		return
	}

	table := s.processes.Table()
	if req.Descending != nil {
		table.Sort(key, *req.Descending)
	} else {
		table.ClickColumn(key)
	}
	s.handleProcesses(w, r)
}

// handleFind jumps to the next row whose name starts with prefix
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	prefix := []rune(r.URL.Query().Get("prefix"))
	if len(prefix) == 0 {
		http.Error(w, "Missing prefix parameter", http.StatusBadRequest)
		return
	}
	from := -1
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid from parameter", http.StatusBadRequest)
			return
		}
		from = n
	}

	table := s.processes.Table()
	idx := table.FindNext(prefix[0], from)
	if idx >= 0 {
		table.Select(idx)
	}
	writeJSON(w, http.StatusOK, map[string]int{"index": idx})
}

func parseResource(s string) (types.Resource, bool) {
	switch strings.ToLower(s) {
	case "physical", "virtual":
		return types.ResourcePhysical, true
	case "swap", "logical":
		return types.ResourceSwap, true
	}
	return types.ResourcePhysical, false
}

func readCount(r *http.Request) (int, error) {
	countStr := r.URL.Query().Get("count")
	if countStr == "" {
		return defaultHistoryCount, nil
	}
	return strconv.Atoi(countStr)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
