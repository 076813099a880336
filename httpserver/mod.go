// Package httpserver exposes an encrypted fit over HTTP: holders post their
// shards, a fit runs on an in-process cluster, and the summary is served as
// JSON.
//
//	curl -X POST -d '{"Holder":0,"Features":["a"],"X":[[1],[2]],"Y":[1,2]}' http://127.0.0.1:8080/shard
//	curl -X POST http://127.0.0.1:8080/fit
//	curl http://127.0.0.1:8080/summary
//	curl http://127.0.0.1:8080/metrics
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/config"
	"go.dedis.ch/smpcreg/internal/dataset"
	"go.dedis.ch/smpcreg/peer/impl/regression"
	"go.dedis.ch/smpcreg/peer/impl/summary"
	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// ShardRequest registers the shard of a holder.
type ShardRequest struct {
	Holder   int         `json:"Holder"`
	Features []string    `json:"Features"`
	X        [][]float64 `json:"X"`
	Y        []float64   `json:"Y"`
}

// ShardResponse acknowledges a shard.
type ShardResponse struct {
	Holder int `json:"Holder"`
	Rows   int `json:"Rows"`
	Ready  int `json:"Ready"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Server keeps the shards posted so far and the summary of the last fit.
type Server struct {
	conf    config.Config
	metrics *metrics

	sync.Mutex
	shards  map[int]*types.Shard
	summary *summary.Summary
	fitting bool
}

// NewServer returns a server fitting with conf.
func NewServer(conf config.Config) *Server {
	return &Server{
		conf:    conf,
		metrics: newMetrics(),
		shards:  make(map[int]*types.Shard),
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/shard", s.shardHandler)
	mux.HandleFunc("/fit", s.fitHandler)
	mux.HandleFunc("/summary", s.summaryHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves on addr until it fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Info().Str("addr", addr).Msg("http server listening")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) shardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ShardRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, "Invalid post request", http.StatusBadRequest)
		return
	}

	if req.Holder < 0 || req.Holder >= s.conf.Session.Holders {
		writeError(w, xerrors.Errorf("holder %d of %d: %w", req.Holder, s.conf.Session.Holders,
			types.ErrInvalidPartyCount))
		return
	}
	shard := &types.Shard{Features: req.Features, X: req.X, Y: req.Y}
	err = shard.Validate(shard.Cols())
	if err != nil {
		writeError(w, err)
		return
	}

	s.Lock()
	if s.fitting {
		s.Unlock()
		writeError(w, xerrors.Errorf("shard of holder %d posted during a fit: %w", req.Holder,
			types.ErrAlreadyFitted))
		return
	}
	s.shards[req.Holder] = shard
	ready := len(s.shards)
	s.Unlock()

	log.Info().Int("holder", req.Holder).Int("rows", shard.Rows()).Msg("shard registered")
	writeJSON(w, http.StatusOK, ShardResponse{Holder: req.Holder, Rows: shard.Rows(), Ready: ready})
}

func (s *Server) fitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.Lock()
	if s.fitting {
		s.Unlock()
		writeError(w, xerrors.Errorf("fit in progress: %w", types.ErrAlreadyFitted))
		return
	}
	if len(s.shards) != s.conf.Session.Holders {
		ready := len(s.shards)
		s.Unlock()
		writeError(w, xerrors.Errorf("%d of %d shards posted: %w", ready, s.conf.Session.Holders,
			types.ErrIncompleteShares))
		return
	}
	shards := make([]*types.Shard, s.conf.Session.Holders)
	for i := range shards {
		shards[i] = s.shards[i]
	}
	s.fitting = true
	s.Unlock()

	start := time.Now()
	res, err := s.fit(r, shards)
	s.metrics.fits.WithLabelValues(outcome(err)).Inc()
	s.metrics.duration.Observe(time.Since(start).Seconds())

	s.Lock()
	s.fitting = false
	if err == nil {
		s.summary = res
		s.shards = make(map[int]*types.Shard)
	}
	s.Unlock()

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fit runs the shards on a fresh cluster.
func (s *Server) fit(r *http.Request, shards []*types.Shard) (*summary.Summary, error) {
	var scaling *dataset.Scaling
	if s.conf.Data.Scale {
		sc, err := dataset.AutoFactors(s.conf.Inverse.MagnitudeBound, shards...)
		if err != nil {
			return nil, err
		}
		for i, shard := range shards {
			shards[i], err = sc.Apply(shard)
			if err != nil {
				return nil, err
			}
		}
		scaling = &sc
	}

	c, err := regression.NewCluster(s.conf)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	h, err := c.Fit(r.Context(), shards)
	s.metrics.triples.Add(float64(c.Provider().Dealer().Issued()))
	if err != nil {
		return nil, err
	}
	defer h.Close()
	s.metrics.iterations.Observe(float64(h.Models()[0].Iterations()))

	res, err := h.Summarize(r.Context())
	if err != nil {
		return nil, err
	}
	if scaling != nil {
		res = scaling.Rescale(res)
	}
	return res, nil
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.Lock()
	res := s.summary
	s.Unlock()

	if res == nil {
		writeError(w, xerrors.Errorf("no fit yet: %w", types.ErrNotSolved))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// metrics are the counters of the fits run by a server.
type metrics struct {
	registry   *prometheus.Registry
	fits       *prometheus.CounterVec
	triples    prometheus.Counter
	duration   prometheus.Histogram
	iterations prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smpcreg",
			Name:      "fits_total",
			Help:      "Encrypted fits by outcome.",
		}, []string{"outcome"}),
		triples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smpcreg",
			Name:      "triples_total",
			Help:      "Multiplication triples dealt by the crypto provider.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smpcreg",
			Name:      "fit_duration_seconds",
			Help:      "Duration of a fit, reveal included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smpcreg",
			Name:      "inverse_iterations",
			Help:      "Newton-Schulz iterations of solved fits.",
			Buckets:   prometheus.LinearBuckets(8, 8, 8),
		}),
	}
	m.registry.MustRegister(m.fits, m.triples, m.duration, m.iterations)
	return m
}

// outcome labels a fit by the wire code of its error.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return types.ErrorCode(err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrShapeMismatch), errors.Is(err, types.ErrInvalidPartyCount):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotSolved):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrIncompleteShares), errors.Is(err, types.ErrAlreadyFitted):
		status = http.StatusConflict
	case errors.Is(err, types.ErrPartyUnavailable):
		status = http.StatusServiceUnavailable
	}

	log.Warn().Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, ErrorResponse{Code: types.ErrorCode(err), Error: err.Error()})
}
