package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/blocklens/blocklens/internal/model"
	"github.com/blocklens/blocklens/internal/monitoring"

	_ "embed"
)

//go:embed index.html.tmpl
var indexSource string

// Dashboard is the narrow surface the HTTP layer consumes: submit a batch,
// list all known jobs. Implemented by service.Supervisor.
type Dashboard interface {
	SubmitBatch(ctx context.Context, blocks []uint64, rpcURL string) (uuid.UUID, error)
	Jobs(ctx context.Context) ([]model.Job, error)
	OutputDir() string
}

type Server struct {
	dash  Dashboard
	index *template.Template
}

func NewServer(dash Dashboard) *Server {
	return &Server{
		dash:  dash,
		index: template.Must(template.New("index").Parse(indexSource)),
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/jobs", s.handleJobs)
	r.Post("/api/verify", s.handleVerify)
	r.Get("/logs/{block}/{stream}", s.handleLog)
	r.Method(http.MethodGet, "/metrics", monitoring.Handler())
	return r
}

type verifyRequest struct {
	Blocks []uint64 `json:"blocks"`
	RPCURL string   `json:"rpcUrl"`
}

type verifyResponse struct {
	Batch     string `json:"batch"`
	OutputDir string `json:"outputDir"`
	Blocks    int    `json:"blocks"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err = json.NewDecoder(r.Body).Decode(&req)
	} else {
		// the dashboard form posts blocks as one text field
		if err = r.ParseForm(); err == nil {
			req.Blocks, err = ParseBlocks(r.PostFormValue("blocks"))
			req.RPCURL = r.PostFormValue("rpcUrl")
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Blocks) == 0 {
		writeError(w, http.StatusBadRequest, model.ErrEmptyBatch)
		return
	}

	batch, err := s.dash.SubmitBatch(r.Context(), req.Blocks, req.RPCURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusAccepted, verifyResponse{
		Batch:     batch.String(),
		OutputDir: s.dash.OutputDir(),
		Blocks:    len(req.Blocks),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.dash.Jobs(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "listing jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.dash.Jobs(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "listing jobs failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, jobs); err != nil {
		slog.ErrorContext(r.Context(), "rendering index failed", "error", err)
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	block, err := strconv.ParseUint(chi.URLParam(r, "block"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrBadBlock)
		return
	}
	stream := chi.URLParam(r, "stream")
	if stream != "stdout" && stream != "stderr" {
		writeError(w, http.StatusBadRequest, model.ErrBadStream)
		return
	}

	name := fmt.Sprintf("%d.%s.log", block, stream)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, filepath.Join(s.dash.OutputDir(), name))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ParseBlocks parses a whitespace or comma separated list of block numbers.
func ParseBlocks(raw string) ([]uint64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	blocks := make([]uint64, 0, len(fields))
	for _, f := range fields {
		block, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", model.ErrBadBlock, f)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
