// Package metrics owns the Prometheus collectors. Helpers are no-ops until
// Init runs, so packages can record unconditionally and tests need no
// registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "sleepalarm_"

// Trigger labels for AlarmFired.
const (
	TriggerExact  = "exact"
	TriggerMissed = "missed"
)

// Result labels for AlarmAdd.
const (
	ResultAdded    = "added"
	ResultRejected = "rejected"
)

var (
	registerOnce sync.Once

	alarmsFired      *prometheus.CounterVec
	alarmAdds        *prometheus.CounterVec
	sleepEvents      *prometheus.CounterVec
	sleepEventsDrop  prometheus.Gauge
	triggerLogResets prometheus.Counter
	persistErrors    *prometheus.CounterVec
	notifyErrors     *prometheus.CounterVec
	alarmsConfigured prometheus.Gauge
)

// Init registers collectors with reg, or the default registerer when reg
// is nil. Only the first call has an effect.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		alarmsFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_fired_total",
				Help: "Alarms fired by trigger path",
			},
			[]string{"trigger"},
		)
		alarmAdds = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_add_total",
				Help: "Alarm add attempts by result",
			},
			[]string{"result"},
		)
		sleepEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sleep_events_total",
				Help: "Recorded wake/sleep events by kind",
			},
			[]string{"kind"},
		)
		sleepEventsDrop = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "sleep_events_dropped",
			Help: "Stored wake/sleep records that failed to parse at the last aggregation",
		})
		triggerLogResets = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "trigger_log_resets_total",
			Help: "Day-boundary clears of the trigger log",
		})
		persistErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_errors_total",
				Help: "Failed store writes by operation",
			},
			[]string{"op"},
		)
		notifyErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_errors_total",
				Help: "Failed notifier calls by operation",
			},
			[]string{"op"},
		)
		alarmsConfigured = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "alarms_configured",
			Help: "Alarms in the current set",
		})
		reg.MustRegister(
			alarmsFired,
			alarmAdds,
			sleepEvents,
			sleepEventsDrop,
			triggerLogResets,
			persistErrors,
			notifyErrors,
			alarmsConfigured,
		)
	})
}

func IncAlarmFired(trigger string) {
	if trigger == "" {
		trigger = TriggerExact
	}
	if alarmsFired != nil {
		alarmsFired.WithLabelValues(trigger).Inc()
	}
}

func IncAlarmAdd(result string) {
	if alarmAdds != nil {
		alarmAdds.WithLabelValues(result).Inc()
	}
}

func IncSleepEvent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if sleepEvents != nil {
		sleepEvents.WithLabelValues(kind).Inc()
	}
}

// SetSleepEventsDropped reports how many stored records the last heat-map
// build could not parse. Repeated reads of the same records do not add up.
func SetSleepEventsDropped(n int) {
	if n < 0 {
		n = 0
	}
	if sleepEventsDrop != nil {
		sleepEventsDrop.Set(float64(n))
	}
}

func IncTriggerLogReset() {
	if triggerLogResets != nil {
		triggerLogResets.Inc()
	}
}

func IncPersistError(op string) {
	if persistErrors != nil {
		persistErrors.WithLabelValues(op).Inc()
	}
}

func IncNotifyError(op string) {
	if notifyErrors != nil {
		notifyErrors.WithLabelValues(op).Inc()
	}
}

func SetAlarmsConfigured(n int) {
	if alarmsConfigured != nil {
		alarmsConfigured.Set(float64(n))
	}
}
