package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	detectRoute       = "/api/detect-changes"
	detectSpanName    = "meptrack.detect.request"
	detectEventName   = "detect.request.completed"
	detectEventDomain = "meptrack"

	tracerName = "meptrack-api/api"
)

// detectRequestMetrics collects per-request observability data for the
// detection route and emits it once, as a span plus a structured log event.
type detectRequestMetrics struct {
	logger           *log.Logger
	span             trace.Span
	start            time.Time
	decodeDuration   time.Duration
	detectDuration   time.Duration
	encodeDuration   time.Duration
	mode             string
	observedReceived int
	eventsLogged     int
	errorStage       string
}

func newDetectRequestMetrics(ctx context.Context, logger *log.Logger) (*detectRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, detectSpanName)
	return &detectRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *detectRequestMetrics) ObserveDecode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.decodeDuration = duration
}

func (m *detectRequestMetrics) ObserveDetect(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.detectDuration = duration
}

func (m *detectRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *detectRequestMetrics) SetObservedReceived(count int) {
	if count < 0 {
		count = 0
	}
	m.observedReceived = count
}

func (m *detectRequestMetrics) SetEventsLogged(count int) {
	if count < 0 {
		count = 0
	}
	m.eventsLogged = count
}

func (m *detectRequestMetrics) SetMode(mode string) {
	m.mode = mode
}

func (m *detectRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finalizes the request: attributes go onto the span, an
// observability.event span event is recorded, the span status is set from the
// outcome, and the same attributes are logged through logrus.
func (m *detectRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", detectRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("meptrack.detect.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("meptrack.detect.observed_received", m.observedReceived),
		attribute.Int("meptrack.detect.events_logged", m.eventsLogged),
	}
	if m.mode != "" {
		attrs = append(attrs, attribute.String("meptrack.detect.mode", m.mode))
	}
	if m.decodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("meptrack.detect.decode_ms", durationToMillis(m.decodeDuration)))
	}
	if m.detectDuration > 0 {
		attrs = append(attrs, attribute.Float64("meptrack.detect.detect_ms", durationToMillis(m.detectDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("meptrack.detect.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("meptrack.detect.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", detectEventName),
			attribute.String("event.domain", detectEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      detectEventName,
		"event.domain":    detectEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesAsMap(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesAsMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
