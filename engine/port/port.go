// Package port implements the request/response/grant wire protocol of
// spec.md §4.1 and §6: a master calls Req on a slave and gets back one
// of four outcomes, with PENDING and DENIED deferring completion to a
// later callback on the master.
package port

import "example.com/meshcore/engine/ioreq"

// Initiator is the master side of a port: it issues requests and is
// called back on completion or retry.
type Initiator interface {
	// Resp is invoked exactly once by a target that returned PENDING,
	// when the request has completed.
	Resp(r *ioreq.IoRequest)
	// Grant is invoked exactly once by a target that returned DENIED,
	// once capacity frees up so the initiator may retry.
	Grant(r *ioreq.IoRequest)
}

// Target is the slave side of a port: it accepts requests from a
// master and returns one of ioreq.Status{OK,PENDING,DENIED,INVALID}.
// Req must never block; unfinished work is deferred via the owning
// engine.ClockEvent machinery and surfaces later through Resp/Grant on
// the initiator.
type Target interface {
	Req(r *ioreq.IoRequest) ioreq.Status
}

// Forwarder plays both roles: it is a Target to whatever calls into it
// and an Initiator to whatever it forwards to. Routers and Network
// Interfaces are Forwarders.
type Forwarder interface {
	Target
	Initiator
}

// Stub is an embeddable no-op Initiator for components that only issue
// fire-and-forget child requests and assert results synchronously in
// tests.
type Stub struct {
	RespFn  func(r *ioreq.IoRequest)
	GrantFn func(r *ioreq.IoRequest)
}

func (s *Stub) Resp(r *ioreq.IoRequest) {
	if s.RespFn != nil {
		s.RespFn(r)
	}
}

func (s *Stub) Grant(r *ioreq.IoRequest) {
	if s.GrantFn != nil {
		s.GrantFn(r)
	}
}
