package notify

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// Dispatcher turns transitions into messages and hands them to the
// transports. It never returns an error: the caller gets the per-transport
// results and failures are logged here.
type Dispatcher struct {
	transports Multi
	log        *zap.Logger
	now        func() time.Time
}

func NewDispatcher(log *zap.Logger, transports ...Transport) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{transports: Multi(transports), log: log, now: time.Now}
}

// NotifyDown announces that m went down. cause is "HTTP error" for a bad
// status or the last transport error of the cycle.
func (d *Dispatcher) NotifyDown(ctx context.Context, m domain.Monitor, cause string) Results {
	msg := Message{
		To:      m.AlertEmail,
		Subject: "DOWN: " + m.URL,
		Body: "DOWN\n" + m.URL +
			"\nError: " + cause +
			"\nTime: " + d.now().UTC().Format(time.RFC3339),
	}
	return d.dispatch(ctx, m, "down", msg)
}

// NotifyUp announces recovery. known is false when no open incident was
// found, in which case the downtime is reported as unknown.
func (d *Dispatcher) NotifyUp(ctx context.Context, m domain.Monitor, downtime time.Duration, known bool) Results {
	dt := "unknown"
	if known {
		dt = formatSeconds(downtime) + "s"
	}
	msg := Message{
		To:      m.AlertEmail,
		Subject: "RECOVERED: " + m.URL,
		Body: "UP\n" + m.URL +
			"\nDowntime: " + dt +
			"\nRecovered at: " + d.now().UTC().Format(time.RFC3339),
	}
	return d.dispatch(ctx, m, "up", msg)
}

func (d *Dispatcher) dispatch(ctx context.Context, m domain.Monitor, kind string, msg Message) Results {
	results := d.transports.Send(ctx, msg)
	for _, r := range results {
		fields := []zap.Field{
			zap.Int64("monitor_id", int64(m.ID)),
			zap.String("url", m.URL),
			zap.String("alert", kind),
			zap.String("transport", r.Transport),
		}
		switch r.Outcome {
		case Delivered:
			d.log.Info("alert_sent", fields...)
		case Skipped:
			d.log.Info("alert_skipped", append(fields, zap.String("reason", r.Reason))...)
		case Failed:
			d.log.Warn("alert_delivery_failed", append(fields, zap.String("reason", r.Reason))...)
		}
	}
	if n := results.Count(Failed); n > 0 && n == len(results) {
		d.log.Error("alert_undelivered",
			zap.Int64("monitor_id", int64(m.ID)),
			zap.String("alert", kind),
			zap.Error(results.Err()),
		)
	}
	return results
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Round(time.Millisecond).Seconds(), 'f', -1, 64)
}
