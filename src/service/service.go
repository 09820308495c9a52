// Package service serves the stats, consensus events, rounds and metrics of a
// node over HTTP.
package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/hashgraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Node is the part of a node exposed by the service.
type Node interface {
	Stats() map[string]string
	GetConsensusEvent(index uint64) (*hashgraph.ConsensusEvent, error)
	GetRound(round int) (*hashgraph.RoundInfo, error)
}

// ConsensusEvent is the JSON view of a consensus event.
type ConsensusEvent struct {
	Index         uint64    `json:"index"`
	Hash          string    `json:"hash"`
	Creator       uint64    `json:"creator"`
	Generation    uint64    `json:"generation"`
	BirthRound    uint64    `json:"birth_round"`
	SelfParent    string    `json:"self_parent,omitempty"`
	OtherParents  []string  `json:"other_parents"`
	TimeCreated   time.Time `json:"time_created"`
	Timestamp     time.Time `json:"consensus_timestamp"`
	RoundReceived int       `json:"round_received"`
	Transactions  [][]byte  `json:"transactions"`
}

func newConsensusEvent(ce *hashgraph.ConsensusEvent) ConsensusEvent {
	res := ConsensusEvent{
		Index:         ce.Index,
		Hash:          ce.Event.Hex(),
		Creator:       uint64(ce.Event.Creator()),
		Generation:    ce.Event.Generation(),
		BirthRound:    ce.Event.BirthRound(),
		OtherParents:  []string{},
		TimeCreated:   ce.Event.TimeCreated(),
		Timestamp:     ce.Timestamp,
		RoundReceived: ce.RoundReceived,
		Transactions:  ce.Event.Transactions(),
	}
	if sp := ce.Event.SelfParent(); sp != nil {
		res.SelfParent = sp.Hash
	}
	for _, op := range ce.Event.OtherParents() {
		res.OtherParents = append(res.OtherParents, op.Hash)
	}
	return res
}

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService creates a Service and registers its handlers. gatherer is served
// under /metrics; it may be nil.
func NewService(bindAddress string, n Node, gatherer prometheus.Gatherer, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers(gatherer)

	return &service
}

func (s *Service) registerHandlers(gatherer prometheus.Gatherer) {
	s.logger.Debug("Registering swirl API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/consensus/", s.makeHandler(s.GetConsensusEvent))
	s.mux.HandleFunc("/round/", s.makeHandler(s.GetRound))
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
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

// Handler returns the handler serving all the endpoints.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving swirl API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns the node's counters.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.Stats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetConsensusEvent returns the consensus event at /consensus/{index}.
func (s *Service) GetConsensusEvent(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/consensus/"):]

	index, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing index parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ce, err := s.node.GetConsensusEvent(index)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving consensus event %d", index)
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(newConsensusEvent(ce))
}

// GetRound returns the finalized round at /round/{n}.
func (s *Service) GetRound(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/round/"):]

	round, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing round parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ri, err := s.node.GetRound(round)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving round %d", round)
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	res, err := ri.Marshal()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	w.Write(res)
}

func errorStatus(err error) int {
	if common.IsStore(err, common.KeyNotFound) ||
		common.IsStore(err, common.TooLate) ||
		common.IsStore(err, common.Empty) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
