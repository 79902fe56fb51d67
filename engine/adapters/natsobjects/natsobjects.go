// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package natsobjects is a reference engine.ObjectStore/engine.ResultSink
// pair backed by NATS subjects, for deployments where the corpus and the
// passing-object sink both live behind a message bus rather than a local
// filesystem. It is a thin adapter: all it does is turn inbound messages
// into ObjectRecords and outbound ObjectRecords into published messages.
package natsobjects

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/AleutianAI/diamondcore/engine"
)

// Store pulls candidate objects from a plain (core NATS) synchronous
// subscription. A message carrying JetStream metadata gets the ID
// "subject#stream-sequence"; any other message gets "subject@n", where n
// counts the messages this Store has received, so every object has a
// distinct identity for the Attribute Cache.
type Store struct {
	sub      *nats.Subscription
	received atomic.Uint64
}

// OpenStore subscribes to subject on nc with a bounded pending-message
// buffer, returning a Store that serves one object per call to Next.
func OpenStore(nc *nats.Conn, subject string, pending int) (*Store, error) {
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		return nil, engine.Wrap(engine.KindCollaboratorUnavailable, "subscribing to "+subject, err)
	}
	if pending > 0 {
		if err := sub.SetPendingLimits(pending, -1); err != nil {
			return nil, engine.Wrap(engine.KindCollaboratorUnavailable, "setting pending limits on "+subject, err)
		}
	}
	return &Store{sub: sub}, nil
}

// Next implements engine.ObjectStore, blocking until a message arrives,
// ctx is cancelled, or the subscription is torn down.
func (s *Store) Next(ctx context.Context) (*engine.ObjectRecord, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nats.ErrConnectionClosed || err == nats.ErrBadSubscription {
			return nil, engine.ErrEndOfStream
		}
		return nil, engine.Wrap(engine.KindCollaboratorUnavailable, "receiving object message", err)
	}
	meta, _ := msg.Metadata()
	id := fmt.Sprintf("%s@%d", msg.Subject, s.received.Add(1))
	if meta != nil {
		id = fmt.Sprintf("%s#%d", msg.Subject, meta.Sequence.Stream)
	}
	return engine.NewObjectRecord(id, msg.Data), nil
}

// Close drains the underlying subscription.
func (s *Store) Close() error {
	return s.sub.Drain()
}

// Sink publishes passing objects to a fixed NATS subject.
type Sink struct {
	nc      *nats.Conn
	subject string
}

// NewSink returns a Sink publishing to subject over nc.
func NewSink(nc *nats.Conn, subject string) *Sink {
	return &Sink{nc: nc, subject: subject}
}

// Emit implements engine.ResultSink.
func (s *Sink) Emit(ctx context.Context, obj *engine.ObjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.nc.Publish(s.subject, obj.Body); err != nil {
		return fmt.Errorf("natsobjects: publishing %s: %w", obj.ID, err)
	}
	return nil
}
