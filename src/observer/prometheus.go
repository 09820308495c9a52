package observer

import (
	"fmt"
	"strconv"

	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is an Observer maintaining prometheus metrics.
type Prometheus struct {
	ancientEvents   prometheus.Counter
	fameDecisions   *prometheus.CounterVec
	votingRounds    prometheus.Histogram
	roundsFinalized prometheus.Counter
	consensusEvents prometheus.Counter
	lastRound       prometheus.Gauge
	threshold       prometheus.Gauge
}

// NewPrometheus creates the metrics under namespace and registers them.
func NewPrometheus(namespace string, registerer prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		ancientEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ancient_events",
			Help:      "Number of ancient events that reached the tipset tracker",
		}),
		fameDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fame_decisions",
			Help:      "Number of witnesses whose fame was decided",
		}, []string{"famous"}),
		votingRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voting_rounds",
			Help:      "Rounds of virtual voting needed to decide a witness",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),
		roundsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finalized",
			Help:      "Number of finalized rounds",
		}),
		consensusEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_events",
			Help:      "Number of events that reached consensus",
		}),
		lastRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_consensus_round",
			Help:      "Latest finalized round",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ancient_threshold",
			Help:      "Current ancient threshold",
		}),
	}

	collectors := map[string]prometheus.Collector{
		"ancient events":       p.ancientEvents,
		"fame decisions":       p.fameDecisions,
		"voting rounds":        p.votingRounds,
		"rounds finalized":     p.roundsFinalized,
		"consensus events":     p.consensusEvents,
		"last consensus round": p.lastRound,
		"ancient threshold":    p.threshold,
	}
	for name, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register %s statistics due to %w", name, err)
		}
	}

	p.lastRound.Set(event.NoConsensusRound)

	return p, nil
}

// AncientEventReceived implements Observer.
func (p *Prometheus) AncientEventReceived(event.Descriptor, event.Window) {
	p.ancientEvents.Inc()
}

// WitnessFameDecided implements Observer.
func (p *Prometheus) WitnessFameDecided(_ int, _ event.Descriptor, famous bool, votingRounds int) {
	p.fameDecisions.WithLabelValues(strconv.FormatBool(famous)).Inc()
	p.votingRounds.Observe(float64(votingRounds))
}

// RoundFinalized implements Observer.
func (p *Prometheus) RoundFinalized(round int, received int, w event.Window) {
	p.roundsFinalized.Inc()
	p.consensusEvents.Add(float64(received))
	p.lastRound.Set(float64(round))
	p.threshold.Set(float64(w.AncientThreshold))
}
