package server

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLogUnit is the systemd unit the device daemon runs as.
const DefaultLogUnit = "hedgebook"

const maxLogLines = 10000

// journalReader returns the last n lines written by unit.
type journalReader func(ctx context.Context, unit string, n int) (string, error)

// LogHandlers handles log access via journalctl
type LogHandlers struct {
	unit string
	read journalReader
	log  zerolog.Logger
}

// NewLogHandlers creates a new log handlers instance. An empty unit means
// DefaultLogUnit.
func NewLogHandlers(unit string, log zerolog.Logger) *LogHandlers {
	if unit == "" {
		unit = DefaultLogUnit
	}
	return &LogHandlers{
		unit: unit,
		read: readJournal,
		log:  log.With().Str("component", "log_handlers").Logger(),
	}
}

// LogSource describes a readable log
type LogSource struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// LogListResponse represents the list of available log sources
type LogListResponse struct {
	LogFiles []LogSource `json:"log_files"`
	Total    int         `json:"total"`
}

// LogContentResponse represents log content
type LogContentResponse struct {
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleListLogs returns available log sources
func (h *LogHandlers) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	response := LogListResponse{
		LogFiles: []LogSource{{Name: h.unit, Source: "systemd journal"}},
		Total:    1,
	}
	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleGetLogs retrieves log content with optional level and search filters
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.serveLines(w, r, linesParam(q.Get("lines"), 100), strings.ToUpper(q.Get("level")), q.Get("search"))
}

// HandleGetErrors retrieves only error logs
func (h *LogHandlers) HandleGetErrors(w http.ResponseWriter, r *http.Request) {
	h.serveLines(w, r, linesParam(r.URL.Query().Get("lines"), 500), "ERROR", "")
}

func (h *LogHandlers) serveLines(w http.ResponseWriter, r *http.Request, lines int, level, search string) {
	h.log.Debug().
		Int("lines", lines).
		Str("level", level).
		Str("search", search).
		Msg("Getting log content from journalctl")

	output, err := h.read(r.Context(), h.unit, lines)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read journalctl logs")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read logs"}, h.log)
		return
	}

	logLines := strings.Split(strings.TrimSpace(output), "\n")
	if len(logLines) == 1 && logLines[0] == "" {
		logLines = []string{}
	}

	writeJSON(w, http.StatusOK, LogContentResponse{
		Lines:  filterLogs(logLines, level, search),
		Total:  len(logLines),
		Status: "ok",
	}, h.log)
}

func readJournal(ctx context.Context, unit string, n int) (string, error) {
	cmd := exec.CommandContext(ctx, "journalctl", "-u", unit,
		fmt.Sprintf("--lines=%d", n),
		"--output=short",
		"--no-pager")
	out, err := cmd.Output()
	return string(out), err
}

func linesParam(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxLogLines {
		return maxLogLines
	}
	return n
}

// filterLogs filters log lines by level and search term
func filterLogs(lines []string, level string, search string) []string {
	filtered := make([]string, 0, len(lines))
	search = strings.ToLower(search)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if level != "" && !lineMatchesLevel(line, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), search) {
			continue
		}
		filtered = append(filtered, line)
	}

	return filtered
}

// lineMatchesLevel matches zerolog JSON lines and plain "ERROR:" style text.
func lineMatchesLevel(line string, level string) bool {
	if strings.Contains(line, `"level"`) {
		return strings.Contains(strings.ToLower(line), `"level":"`+strings.ToLower(level)+`"`)
	}

	upperLine := strings.ToUpper(line)
	upperLevel := strings.ToUpper(level)

	return strings.Contains(upperLine, upperLevel+":") ||
		strings.Contains(upperLine, "["+upperLevel+"]") ||
		strings.Contains(upperLine, " "+upperLevel+" ") ||
		strings.Contains(upperLine, " "+upperLevel[:min(3, len(upperLevel))]+" ")
}
