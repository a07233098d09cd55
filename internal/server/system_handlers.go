package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/hedgebook/internal/database"
	"github.com/aristath/hedgebook/internal/modules/syncer"
)

// SyncStatusProvider reports the sync controller's state.
type SyncStatusProvider interface {
	Status() syncer.Status
}

// JobRunner lists and triggers registered jobs.
type JobRunner interface {
	JobNames() []string
	RunByName(name string) error
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	databases   map[string]*database.DB
	sync        SyncStatusProvider
	jobs        JobRunner
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance. jobs may be nil
// before the scheduler is built.
func NewSystemHandlers(databases map[string]*database.DB, sync SyncStatusProvider, jobs JobRunner, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		databases:   databases,
		sync:        sync,
		jobs:        jobs,
	}
	h.systemStats = h.getSystemStats
	return h
}

// SystemStatusResponse represents the device status
type SystemStatusResponse struct {
	Status        string        `json:"status"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryPercent float64       `json:"memory_percent"`
	Sync          syncer.Status `json:"sync"`
	Jobs          []string      `json:"jobs"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name   string          `json:"name"`
	Path   string          `json:"path"`
	SizeMB float64         `json:"size_mb"`
	Stats  *database.Stats `json:"stats,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// JobsStatusResponse lists the registered jobs
type JobsStatusResponse struct {
	TotalJobs int      `json:"total_jobs"`
	Jobs      []string `json:"jobs"`
}

// HandleSystemStatus returns the device status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.systemStats()
	status := h.sync.Status()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Sync:          status,
		Jobs:          h.jobNames(),
	}
	if status.State == syncer.StateError {
		response.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	names := make([]string, 0, len(h.databases))
	for name, db := range h.databases {
		if db != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	response := DatabaseStatsResponse{
		Databases:   make([]DBInfo, 0, len(names)),
		LastChecked: time.Now().Format(time.RFC3339),
	}
	for _, name := range names {
		db := h.databases[name]
		info := DBInfo{Name: name, Path: db.Path()}

		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			info.Error = err.Error()
		} else {
			info.Stats = stats
			info.SizeMB = float64(stats.SizeBytes+stats.WALSizeBytes) / 1024 / 1024
			response.TotalSizeMB += info.SizeMB
		}
		response.Databases = append(response.Databases, info)
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleJobsStatus lists the registered jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	names := h.jobNames()
	writeJSON(w, http.StatusOK, JobsStatusResponse{TotalJobs: len(names), Jobs: names}, h.log)
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	known := false
	for _, n := range h.jobNames() {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job " + name}, h.log)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	if err := h.jobs.RunByName(name); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"job":     name,
			"message": err.Error(),
		}, h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"job":     name,
		"message": name + " completed",
	}, h.log)
}

func (h *SystemHandlers) jobNames() []string {
	if h.jobs == nil {
		return []string{}
	}
	names := h.jobs.JobNames()
	sort.Strings(names)
	return names
}

// getSystemStats calculates CPU and RAM usage percentages over a short
// sampling window.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
