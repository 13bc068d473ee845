package rover

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/kwv/gridlink/rover"

// meter returns the package meter from the global provider. Without a
// configured provider every instrument is a no-op.
func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// instruments groups the counters the package records into
type instruments struct {
	lines       metric.Int64Counter
	discarded   metric.Int64Counter
	maneuvers   metric.Int64Counter
	attempts    metric.Int64Counter
	transitions metric.Int64Counter
}

// newInstruments creates the package counters. Creation only fails with a
// misbehaving SDK, in which case the noop instruments are kept.
func newInstruments() *instruments {
	m := meter()
	in := &instruments{}
	in.lines = counter(m, "gridlink.dispatch.lines", "Inbound protocol lines applied")
	in.discarded = counter(m, "gridlink.dispatch.discarded", "Inbound protocol lines discarded")
	in.maneuvers = counter(m, "gridlink.maneuvers", "Vehicle maneuvers requested")
	in.attempts = counter(m, "gridlink.session.connect_attempts", "Outbound link connection attempts")
	in.transitions = counter(m, "gridlink.session.transitions", "Link session state transitions")
	return in
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter(name)
	}
	return c
}

func (in *instruments) add(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
