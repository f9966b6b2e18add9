package app

import "sync/atomic"

// Stats are process-wide counters. The zero value is ready to use.
type Stats struct {
	Accepted    atomic.Int64
	Rejected    atomic.Int64
	Relayed     atomic.Int64
	Malformed   atomic.Int64
	RateLimited atomic.Int64
	Delivered   atomic.Int64
	Dropped     atomic.Int64
	Kicked      atomic.Int64
	Notified    atomic.Int64
	MQTTSent    atomic.Int64
	MQTTFailed  atomic.Int64
}

type StatsSnapshot struct {
	Accepted    int64 `json:"accepted"`
	Rejected    int64 `json:"rejected"`
	Relayed     int64 `json:"relayed"`
	Malformed   int64 `json:"malformed"`
	RateLimited int64 `json:"rate_limited"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
	Kicked      int64 `json:"kicked"`
	Notified    int64 `json:"notified"`
	MQTTSent    int64 `json:"mqtt_sent"`
	MQTTFailed  int64 `json:"mqtt_failed"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:    s.Accepted.Load(),
		Rejected:    s.Rejected.Load(),
		Relayed:     s.Relayed.Load(),
		Malformed:   s.Malformed.Load(),
		RateLimited: s.RateLimited.Load(),
		Delivered:   s.Delivered.Load(),
		Dropped:     s.Dropped.Load(),
		Kicked:      s.Kicked.Load(),
		Notified:    s.Notified.Load(),
		MQTTSent:    s.MQTTSent.Load(),
		MQTTFailed:  s.MQTTFailed.Load(),
	}
}
