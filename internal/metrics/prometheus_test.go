package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	tests := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"QueueEnqueuedTotal", QueueEnqueuedTotal},
		{"QueueDrainedTotal", QueueDrainedTotal},
		{"QueueDrainSkipsTotal", QueueDrainSkipsTotal},
		{"QueueDrainDuration", QueueDrainDuration},
		{"QueueDrainErrorsTotal", QueueDrainErrorsTotal},
		{"QueueQuarantinedRecords", QueueQuarantinedRecords},
		{"DeliverySendTotal", DeliverySendTotal},
		{"DeliverySendDuration", DeliverySendDuration},
		{"APIRequestsTotal", APIRequestsTotal},
		{"APIRequestDuration", APIRequestDuration},
		{"APIAuthFailuresTotal", APIAuthFailuresTotal},
		{"RelayDeliveriesTotal", RelayDeliveriesTotal},
		{"RelayRetriesTotal", RelayRetriesTotal},
		{"RelayPollErrorsTotal", RelayPollErrorsTotal},
		{"SMTPSessionsActive", SMTPSessionsActive},
		{"SMTPMessagesTotal", SMTPMessagesTotal},
		{"SMTPAuthFailuresTotal", SMTPAuthFailuresTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s is nil", tt.name)
			}
		})
	}
}

func TestDrainSkipsByReason(t *testing.T) {
	for _, reason := range []string{"not_found", "read_failed", "decode_failed", "delete_failed", "already_claimed"} {
		QueueDrainSkipsTotal.WithLabelValues(reason).Inc()
	}
}

func TestDeliverySendLabels(t *testing.T) {
	DeliverySendTotal.WithLabelValues("queue", "success").Inc()
	DeliverySendTotal.WithLabelValues("sendgrid", "failure").Inc()
	DeliverySendDuration.WithLabelValues("queue").Observe(0.002)
}

func TestAPIRequestsCounter(t *testing.T) {
	APIRequestsTotal.WithLabelValues("POST", "/queue/drain", "200").Inc()
	APIRequestDuration.WithLabelValues("POST", "/queue/drain").Observe(0.05)
}
