// Package service exposes read-only status endpoints for a running hub.
package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samnetworks/samcore/src/hub"
	"github.com/samnetworks/samcore/src/settings"
)

// Service serves hub status over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	hub         *hub.Hub
	logger      *logrus.Entry
}

// NewService creates the status service and registers its handlers.
func NewService(bindAddress string, h *hub.Hub, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		hub:         h,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. It is possible that another server in the same process
// is simultaneously using the DefaultServerMux. In which case, the handlers
// will be accessible from both servers.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering status handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/nodes", s.makeHandler(s.GetNodes))
	http.HandleFunc("/packages", s.makeHandler(s.GetPackages))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving status API")

	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns the hub summary.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.hub.Stats())
}

// nodeInfo is the wire shape of one registry entry.
type nodeInfo struct {
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// GetNodes returns the currently registered nodes.
func (s *Service) GetNodes(w http.ResponseWriter, r *http.Request) {
	entries := s.hub.Registry().Entries()

	nodes := make([]nodeInfo, 0, len(entries))
	for _, entry := range entries {
		nodes = append(nodes, nodeInfo{
			Name:        entry.Name,
			ConnectedAt: entry.ConnectedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(nodes)
}

// GetPackages returns the package records from the settings document.
func (s *Service) GetPackages(w http.ResponseWriter, r *http.Request) {
	packages, ok := s.hub.Settings().Get("packages")
	if !ok {
		packages = map[string]interface{}{}
	}
	packages = settings.Clone(packages)

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(packages)
}
