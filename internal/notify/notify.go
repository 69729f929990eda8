// Package notify delivers down and recovery alerts through pluggable
// transports. Delivery problems are reported as Result values; nothing here
// can fail a check cycle.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

type Outcome string

const (
	Delivered Outcome = "delivered"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
)

// Message is transport-neutral. To is only meaningful for addressed
// transports such as email.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Result struct {
	Transport string
	Outcome   Outcome
	Reason    string
}

func delivered(name string) Result { return Result{Transport: name, Outcome: Delivered} }

func skipped(name, reason string) Result {
	return Result{Transport: name, Outcome: Skipped, Reason: reason}
}

func failed(name string, err error) Result {
	return Result{Transport: name, Outcome: Failed, Reason: err.Error()}
}

type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) Result
}

type Results []Result

// Err folds every failed result into one error, nil when none failed.
// Skips are not errors.
func (rs Results) Err() error {
	var err error
	for _, r := range rs {
		if r.Outcome == Failed {
			err = multierr.Append(err, fmt.Errorf("%s: %w", r.Transport, errors.New(r.Reason)))
		}
	}
	return err
}

func (rs Results) Count(o Outcome) int {
	n := 0
	for _, r := range rs {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Multi fans a message out to every transport in order.
type Multi []Transport

func (m Multi) Send(ctx context.Context, msg Message) Results {
	out := make(Results, 0, len(m))
	for _, t := range m {
		if t == nil {
			continue
		}
		out = append(out, t.Send(ctx, msg))
	}
	return out
}
