package login

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records login counters. A nil *Metrics records nothing.
type Metrics struct {
	startedTotal   metric.Int64Counter
	succeededTotal metric.Int64Counter
	failedTotal    metric.Int64Counter
	abandonedTotal metric.Int64Counter
	active         metric.Int64UpDownCounter
}

// NewMetrics creates the login instruments on meter. A nil meter yields no-op
// instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("userbot-connect/login")
	}
	var (
		m   Metrics
		err error
	)
	if m.startedTotal, err = meter.Int64Counter("login.started",
		metric.WithDescription("Logins started.")); err != nil {
		return nil, err
	}
	if m.succeededTotal, err = meter.Int64Counter("login.succeeded",
		metric.WithDescription("Logins completed with a persisted session.")); err != nil {
		return nil, err
	}
	if m.failedTotal, err = meter.Int64Counter("login.failed",
		metric.WithDescription("Logins failed by the authentication client or persistence.")); err != nil {
		return nil, err
	}
	if m.abandonedTotal, err = meter.Int64Counter("login.abandoned",
		metric.WithDescription("Logins cancelled by the user, idle timeout or shutdown.")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("login.active",
		metric.WithDescription("Logins currently registered.")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) started(ctx context.Context) {
	if m == nil {
		return
	}
	m.startedTotal.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *Metrics) succeeded(ctx context.Context) {
	if m == nil {
		return
	}
	m.succeededTotal.Add(ctx, 1)
}

func (m *Metrics) failed(ctx context.Context) {
	if m == nil {
		return
	}
	m.failedTotal.Add(ctx, 1)
}

func (m *Metrics) abandoned(ctx context.Context) {
	if m == nil {
		return
	}
	m.abandonedTotal.Add(ctx, 1)
}

func (m *Metrics) deregistered(ctx context.Context) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1)
}
