// Package bvll supplements the BACnet Virtual Link Layer behavior the
// teacher's client.go only does once: foreign-device registration with
// a BBMD must be renewed periodically or the BBMD's foreign-device
// table entry expires at TTL. Grounded in client.go's
// registerForeignDevice (one-shot Register-Foreign-Device BVLC frame)
// and spec.md §9's "renew at every TTL/2" guidance.
package bvll

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Registerer sends one Register-Foreign-Device BVLC frame to a BBMD.
// bacnet.Client satisfies this via an unexported adapter so this
// package never imports the root package (which already imports
// nothing from here, avoiding a cycle).
type Registerer func(ctx context.Context, bbmd *net.UDPAddr, ttl uint16) error

// Renewer periodically re-registers with a BBMD at half the negotiated
// TTL, per BACnet's recommended foreign-device renewal cadence.
type Renewer struct {
	bbmd     *net.UDPAddr
	ttl      time.Duration
	register Registerer
	logger   *slog.Logger
}

// NewRenewer constructs a renewer targeting bbmd with lease length ttl.
func NewRenewer(bbmd *net.UDPAddr, ttl time.Duration, register Registerer, logger *slog.Logger) *Renewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renewer{bbmd: bbmd, ttl: ttl, register: register, logger: logger}
}

// Run registers immediately and then re-registers every ttl/2 until
// ctx is cancelled, logging (not failing fast on) renewal errors so a
// transient BBMD outage doesn't tear down the caller.
func (r *Renewer) Run(ctx context.Context) error {
	ttlSeconds := uint16(r.ttl.Seconds())
	if err := r.register(ctx, r.bbmd, ttlSeconds); err != nil {
		return err
	}

	interval := r.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.register(ctx, r.bbmd, ttlSeconds); err != nil {
				r.logger.Warn("foreign device registration renewal failed",
					slog.String("bbmd", r.bbmd.String()), slog.Any("error", err))
			}
		}
	}
}
