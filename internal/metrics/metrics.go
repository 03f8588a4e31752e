package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "charlib"

// Mutation labels.
const (
	MutationCreate = "create"
	MutationUpdate = "update"
	MutationDelete = "delete"
)

// Collaborator labels.
const (
	CollaboratorImageResolver = "image_resolver"
	CollaboratorImageCleanup  = "image_cleanup"
	CollaboratorNotifier      = "notifier"
	CollaboratorQueueConsumer = "queue_consumer"
)

// Recorder holds the Prometheus collectors for the service.
// A nil Recorder discards every observation.
type Recorder struct {
	mutations            *prometheus.CounterVec
	collaboratorFailures *prometheus.CounterVec
	backgroundMessages   prometheus.Counter
}

// New creates the collectors and registers them with the registerer.
func New(registerer prometheus.Registerer) *Recorder {
	factory := promauto.With(registerer)
	return &Recorder{
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "character_mutations_total",
			Help:      "Total number of committed character mutations by operation",
		}, []string{"operation"}),
		collaboratorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Total number of absorbed failures by secondary collaborator",
		}, []string{"collaborator"}),
		backgroundMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_messages_processed_total",
			Help:      "Total number of notification messages processed by the background worker",
		}),
	}
}

// ObserveMutation counts a committed mutation.
func (r *Recorder) ObserveMutation(operation string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(operation).Inc()
}

// ObserveCollaboratorFailure counts a failure absorbed at a collaborator boundary.
func (r *Recorder) ObserveCollaboratorFailure(collaborator string) {
	if r == nil {
		return
	}
	r.collaboratorFailures.WithLabelValues(collaborator).Inc()
}

// ObserveBackgroundMessage counts a message handled by the background worker.
func (r *Recorder) ObserveBackgroundMessage() {
	if r == nil {
		return
	}
	r.backgroundMessages.Inc()
}
