package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/RezaEskandarii/jobfire/client"
	"github.com/RezaEskandarii/jobfire/internal/logger"
	"github.com/RezaEskandarii/jobfire/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	PageSize = 20

	readHeaderTimeout = 5 * time.Second
)

// OpsServer is the operator-facing HTTP surface of a running scheduler.
type OpsServer struct {
	jobManager *client.JobManager
	gatherer   prometheus.Gatherer
	logger     *zap.SugaredLogger
	Port       uint

	server *http.Server
}

func NewOpsServer(jobManager *client.JobManager, gatherer prometheus.Gatherer, port uint, l *zap.SugaredLogger) *OpsServer {
	s := &OpsServer{
		jobManager: jobManager,
		gatherer:   gatherer,
		logger:     logger.OrNop(l),
		Port:       port,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the routed mux. Serve uses it too.
func (s *OpsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /jobs/{id}/executions", s.handleListExecutions)
	mux.HandleFunc("POST /jobs/{id}/execute", s.handleExecute)
	return mux
}

// Serve blocks until Shutdown is called or the listener fails.
func (s *OpsServer) Serve() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.serve(ln)
}

func (s *OpsServer) serve(ln net.Listener) error {
	s.logger.Infow("ops server listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	engine := s.jobManager.Engine
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"armed":   engine.ArmedCount(),
		"running": engine.Running(),
	})
}

func (s *OpsServer) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	page, pageSize := getPage(r)

	res, err := s.jobManager.ListExecutions(r.Context(), jobID, page, pageSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]executionView, 0, len(res.Items))
	for i := range res.Items {
		views = append(views, newExecutionView(&res.Items[i]))
	}
	writeJSON(w, http.StatusOK, types.NewPaginationResult(views, res.TotalItems, res.Page, res.PageSize))
}

func (s *OpsServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	executionID, err := s.jobManager.ExecuteJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":       jobID,
		"execution_id": executionID,
	})
}
