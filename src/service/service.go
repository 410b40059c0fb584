package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mosaicnetworks/chorus/src/common"
	"github.com/mosaicnetworks/chorus/src/node"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// defaultEventsLimit caps the number of consensus Events returned by /events
// when the request sets no limit.
const defaultEventsLimit = 100

// Service exposes a read-only HTTP API over a node
type Service struct {
	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.mux,
	}

	return &service
}

// registerHandlers registers the API handlers on the service's own ServeMux,
// so that several nodes can serve from the same process.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/events", s.makeHandler(s.GetEvents))
	s.mux.HandleFunc("/event/", s.makeHandler(s.GetEvent))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.node.MetricsRegistry(), promhttp.HandlerOpts{}))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the API's http.Handler
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call which returns when the
// server fails or is shut down.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown stops the HTTP server gracefully
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetEvents returns a page of the consensus order. The query parameters are
// from (default 0) and limit (default 100).
func (s *Service) GetEvents(w http.ResponseWriter, r *http.Request) {
	from, err := intParam(r, "from", 0)
	if err != nil || from < 0 {
		s.badRequest(w, "from", r.URL.Query().Get("from"))
		return
	}

	limit, err := intParam(r, "limit", defaultEventsLimit)
	if err != nil || limit <= 0 {
		s.badRequest(w, "limit", r.URL.Query().Get("limit"))
		return
	}

	events, err := s.node.ConsensusEvents(from, limit)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving consensus events from %d", from)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, events)
}

// GetEvent returns an Event and its consensus metadata, by hash
func (s *Service) GetEvent(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimPrefix(r.URL.Path, "/event/")
	if hash == "" {
		s.badRequest(w, "hash", hash)
		return
	}

	event, err := s.node.GetEvent(hash)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Errorf("Retrieving event %s", hash)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, event)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetPeers())
}

func (s *Service) badRequest(w http.ResponseWriter, param, value string) {
	s.logger.WithField(param, value).Debug("Invalid parameter")
	http.Error(w, "invalid "+param+" parameter", http.StatusBadRequest)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
