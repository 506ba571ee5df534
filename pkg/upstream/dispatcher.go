package upstream

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// Clients holds the registered providers. Any slot may be nil; dispatching
// to an empty slot yields an Upstream error rather than a panic, so a
// partially wired deployment degrades instead of dying.
type Clients struct {
	Weather    WeatherClient
	POI        POIClient
	Navigation NavigationClient
	Traffic    TrafficClient
	Crowd      CrowdClient
	Hints      HintsClient
}

// Dispatcher routes CallSpecs to registered clients, decodes their params,
// and classifies failures into the error taxonomy.
type Dispatcher struct {
	clients Clients
	tracer  trace.Tracer
}

// NewDispatcher wires a dispatcher over the given clients.
func NewDispatcher(clients Clients) *Dispatcher {
	return &Dispatcher{
		clients: clients,
		tracer:  observability.GetTracer("periplo.upstream"),
	}
}

// Call executes one spec. The returned error is always a *travel.Error.
func (d *Dispatcher) Call(ctx context.Context, spec travel.CallSpec) (travel.Payload, error) {
	provider := travel.ProviderFor(spec.Kind)

	ctx, span := d.tracer.Start(ctx, "upstream.call",
		trace.WithAttributes(
			attribute.String("upstream.kind", string(spec.Kind)),
			attribute.String("upstream.key", spec.Key),
			attribute.String("upstream.provider", string(provider)),
		))
	defer span.End()

	start := time.Now()
	payload, err := d.dispatch(ctx, spec)
	observability.RecordUpstreamCall(ctx, string(provider), string(spec.Kind), time.Since(start), err)

	if err != nil {
		terr := travel.Classify(err).WithProvider(provider)
		span.RecordError(terr)
		span.SetStatus(codes.Error, string(terr.Kind))
		return nil, terr
	}
	span.SetStatus(codes.Ok, "")
	return payload, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, spec travel.CallSpec) (travel.Payload, error) {
	switch spec.Kind {
	case travel.ServiceWeather:
		if d.clients.Weather == nil {
			return nil, noProvider(spec.Kind)
		}
		day, err := strconv.Atoi(spec.Param("day", "1"))
		if err != nil || day < 1 {
			day = 1
		}
		return d.clients.Weather.Forecast(ctx, spec.Param("city", spec.Key), day)

	case travel.ServicePOI:
		if d.clients.POI == nil {
			return nil, noProvider(spec.Kind)
		}
		q := POIQuery{
			Keyword: spec.Param("keyword", "attractions"),
			Area:    spec.Param("area", ""),
			Region:  spec.Param("region", ""),
			Mood:    spec.Param("mood", ""),
		}
		if avoid := spec.Param("avoid", ""); avoid != "" {
			q.Avoid = strings.Split(avoid, ",")
		}
		return d.clients.POI.Search(ctx, q)

	case travel.ServiceNavigation:
		if d.clients.Navigation == nil {
			return nil, noProvider(spec.Kind)
		}
		return d.clients.Navigation.Route(ctx,
			spec.Param("origin", ""),
			spec.Param("destination", ""),
			spec.Param("mode", "driving"))

	case travel.ServiceTraffic:
		if d.clients.Traffic == nil {
			return nil, noProvider(spec.Kind)
		}
		return d.clients.Traffic.Status(ctx, spec.Param("area", spec.Key))

	case travel.ServiceCrowd:
		if d.clients.Crowd == nil {
			return nil, noProvider(spec.Kind)
		}
		return d.clients.Crowd.Estimate(ctx, spec.Param("place", spec.Key))

	case travel.ServiceInputHints:
		if d.clients.Hints == nil {
			return nil, noProvider(spec.Kind)
		}
		return d.clients.Hints.Suggest(ctx, spec.Param("keyword", spec.Key))
	}
	return nil, travel.Ef(travel.ErrInternal, "unroutable service kind %q", spec.Kind)
}

func noProvider(kind travel.ServiceKind) error {
	return travel.Ef(travel.ErrUpstream, "no %s provider registered", kind)
}
