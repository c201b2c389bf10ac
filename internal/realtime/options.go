package realtime

import "time"

const (
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultMaxMessageBytes = 64 << 10 // 64 KiB
	defaultSendBuffer      = 64
)

// Options tunes a websocket connection.
type Options struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	SendBuffer      int
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		WriteWait:       defaultWriteWait,
		PongWait:        defaultPongWait,
		MaxMessageBytes: defaultMaxMessageBytes,
		SendBuffer:      defaultSendBuffer,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = def.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = def.PongWait
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = def.MaxMessageBytes
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = def.SendBuffer
	}
	return o
}

// PingPeriod is how often the server pings an idle peer. It must stay below PongWait.
func (o Options) PingPeriod() time.Duration {
	return (o.withDefaults().PongWait * 9) / 10
}
