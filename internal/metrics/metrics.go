// Package metrics exposes process-wide prometheus counters and a gauge for dispatch
// volume, pending bucket depth, and stream throughput.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FramesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winbridge",
		Name:      "frames_dispatched_total",
		Help:      "Frames handed to Dispatcher.dispatch, by type and role.",
	}, []string{"type", "role"})

	AutoAcksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "winbridge",
		Name:      "auto_acks_sent_total",
		Help:      "ACK frames emitted automatically by Dispatcher.tryAutoAck.",
	})

	PendingBucketDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "winbridge",
		Name:      "pending_bucket_depth",
		Help:      "Current entry count of a Pending bucket.",
	}, []string{"bucket"})

	StreamBytesTransferred = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "winbridge",
		Name:      "stream_bytes_total",
		Help:      "Bytes carried by stream_data frames, by direction.",
	}, []string{"direction"})

	FacadesOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "winbridge",
		Name:      "facades_opened_total",
		Help:      "Facade instances that have registered their stream dispatch handler.",
	})
)

func init() {
	prometheus.MustRegister(FramesDispatched, AutoAcksSent, PendingBucketDepth, StreamBytesTransferred, FacadesOpened)
}

func IncFramesDispatched(typ, role string) { FramesDispatched.WithLabelValues(typ, role).Inc() }
func IncAutoAcksSent()                     { AutoAcksSent.Inc() }
func SetPendingBucketDepth(bucket string, n int) {
	PendingBucketDepth.WithLabelValues(bucket).Set(float64(n))
}
func AddStreamBytes(direction string, n int) {
	StreamBytesTransferred.WithLabelValues(direction).Add(float64(n))
}
func IncFacadesOpened() { FacadesOpened.Inc() }
