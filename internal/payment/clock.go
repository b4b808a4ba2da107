package payment

import "time"

// Clock is the time source of the verification loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Policy struct {
	PendingInterval    time.Duration
	VerifyCeiling      time.Duration
	TransportBackoff   time.Duration
	MaxTransportErrors int
}

func DefaultPolicy() Policy {
	return Policy{
		PendingInterval:    5 * time.Second,
		VerifyCeiling:      2 * time.Minute,
		TransportBackoff:   3 * time.Second,
		MaxTransportErrors: 3,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.PendingInterval <= 0 {
		p.PendingInterval = d.PendingInterval
	}
	if p.VerifyCeiling <= 0 {
		p.VerifyCeiling = d.VerifyCeiling
	}
	if p.TransportBackoff <= 0 {
		p.TransportBackoff = d.TransportBackoff
	}
	if p.MaxTransportErrors <= 0 {
		p.MaxTransportErrors = d.MaxTransportErrors
	}
	return p
}
