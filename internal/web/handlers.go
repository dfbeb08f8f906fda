package web

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/JonMunkholm/swamp/internal/dataset"
	"github.com/JonMunkholm/swamp/internal/logging"
	"github.com/JonMunkholm/swamp/internal/pipeline"
	"github.com/JonMunkholm/swamp/internal/process"
	"github.com/JonMunkholm/swamp/internal/quality"
)

// classifyDataType labels ad-hoc classifications in metrics.
const classifyDataType = "classify"

// multipartMemory is the part of a multipart form kept in memory.
const multipartMemory = 32 << 20

var errNoInput = errors.New("no csv provided")

// handleHealth reports liveness and the loaded code-table version.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.runner.Limiter().Status()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"tables_version": s.engine.Tables().Version(),
		"active_runs":    status.Active,
		"max_runs":       status.MaxConcurrent,
	})
}

// handleClassify classifies the posted CSV and returns it with DataQuality
// and DataQualityIndicator columns added. With ?filter=true only records
// in the default allow-list are returned.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadSize)

	src, err := classifyInput(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer src.Close()

	ds, err := dataset.ReadCSV(src, dataset.ReadOptions{
		KeepNullColumns: process.CodeColumns,
		TotalBytes:      r.ContentLength,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := s.engine.Process(r.Context(), ds)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.metrics.ObserveClassification(classifyDataType, report.Counts, len(report.Faults))

	if cast.ToBool(r.URL.Query().Get("filter")) {
		removed := process.FilterQuality(ds, nil)
		logging.FromContext(r.Context()).Debug("classify filter applied", "removed", removed)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="data_quality.csv"`)
	w.Header().Set("X-Records", strconv.Itoa(report.Records))
	w.Header().Set("X-Rule-Faults", strconv.Itoa(len(report.Faults)))
	if err := dataset.WriteCSV(w, ds); err != nil {
		logging.FromContext(r.Context()).Error("write classified csv", "error", err)
	}
}

// classifyInput returns the "file" form field of a multipart request, else
// the request body.
func classifyInput(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			return nil, errNoInput
		}
		return r.Body, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, errNoInput
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

type codeTablesResponse struct {
	Version    string                    `json:"version"`
	Categories []string                  `json:"categories"`
	Tables     map[string]map[string]int `json:"tables"`
}

// handleCodeTables lists the loaded code tables.
func (s *Server) handleCodeTables(w http.ResponseWriter, r *http.Request) {
	tables := s.engine.Tables()
	resp := codeTablesResponse{
		Version:    tables.Version(),
		Categories: quality.Categories(),
		Tables:     make(map[string]map[string]int),
	}
	for _, col := range tables.Columns() {
		resp.Tables[col] = tables.Table(col).Codes()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type dataTypeInfo struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Table      string `json:"table,omitempty"`
	Assess     bool   `json:"assess"`
	Derived    bool   `json:"derived"`
	ResourceID string `json:"resource_id"`
	ExportName string `json:"export_name"`
	Running    bool   `json:"running"`
}

// handleDataTypes lists the registered data types.
func (s *Server) handleDataTypes(w http.ResponseWriter, r *http.Request) {
	all := process.All()
	out := make([]dataTypeInfo, len(all))
	for i, dt := range all {
		out[i] = dataTypeInfo{
			Key:        dt.Key,
			Label:      dt.Label,
			Table:      dt.Table,
			Assess:     dt.Assess,
			Derived:    dt.Derived,
			ResourceID: dt.ResourceID,
			ExportName: dt.ExportName,
			Running:    s.runner.Limiter().Running(dt.Key),
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleStartRun starts a background run of every stage for a data type.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runner.Start(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/runs/"+rec.ID)
	writeJSON(w, r, http.StatusAccepted, rec)
}

// handleListRuns lists runs, most recent first. ?data_type narrows the list.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.runner.Runs()
	if key := r.URL.Query().Get("data_type"); key != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if run.DataType == key {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	writeJSON(w, r, http.StatusOK, runs)
}

// handleGetRun returns one run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.runner.GetRun(chi.URLParam(r, "name"))
	if !ok {
		respondError(w, r, pipeline.ErrRunNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}
