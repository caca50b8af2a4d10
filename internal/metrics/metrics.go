package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gadgetchat",
			Name:      "messages_sent_total",
			Help:      "Chat messages accepted, by sender role.",
		},
		[]string{"role"},
	)

	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gadgetchat",
			Name:      "active_streams",
			Help:      "Open chat SSE streams on this instance.",
		},
	)

	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gadgetchat",
			Name:      "stream_events_total",
			Help:      "SSE events written, by event name.",
		},
		[]string{"event"},
	)

	ChatToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gadgetchat",
			Name:      "chat_toggles_total",
			Help:      "Admin chat enable/disable calls.",
		},
		[]string{"enabled"},
	)
)

func init() {
	prometheus.MustRegister(MessagesSent, ActiveStreams, StreamEvents, ChatToggles)
}
