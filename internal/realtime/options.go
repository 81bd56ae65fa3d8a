package realtime

import "time"

const (
	defaultSendBuffer  = 64
	defaultReadLimit   = 64 * 1024
	defaultWriteWait   = 10 * time.Second
	defaultPongWait    = 60 * time.Second
	defaultEventBurst  = 20
	defaultMaxInflight = 16
)

// Options tunes a gateway connection.
type Options struct {
	SendBuffer      int
	ReadLimit       int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	EventsPerSecond float64
	EventBurst      int
	MaxInflight     int
}

// withDefaults fills unset fields. PingPeriod always stays below PongWait so a
// healthy peer never hits the read deadline.
func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.EventBurst <= 0 {
		o.EventBurst = defaultEventBurst
	}
	if o.MaxInflight <= 0 {
		o.MaxInflight = defaultMaxInflight
	}
	return o
}
