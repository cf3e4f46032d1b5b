// Package observability provides logging, metrics and tracing for the
// generation pipeline.
//
// # Logging
//
// NewLogger builds a slog logger that redacts provider keys and other secrets
// from messages and attributes, lifts the run and scenario IDs stored in the
// context into every record, and optionally tees records into a rotating file:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", File: "logs/routergen.log"})
//	defer logger.Close()
//
//	ctx = observability.AddRunID(ctx, runID)
//	logger.InfoContext(ctx, "run started", "target", 1000)
//
// # Metrics
//
// Metrics are Prometheus collectors registered on a caller-supplied registry.
// They count provider attempts per model and outcome, rate-limit backoff,
// accepted and rejected examples, build sizes, uploads and ledger queries.
// The generate command serves them when --metrics-addr is set:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	http.Handle("/metrics", observability.Handler(reg))
//
// # Tracing
//
// NewTracer exports spans over OTLP/gRPC when an endpoint is configured and
// falls back to the global no-op provider otherwise. Scenarios, provider
// attempts, builds and ledger queries each get a span:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{Endpoint: "localhost:4317"})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceScenario(ctx, sc.ID, sc.Intent.Name)
//	defer span.End()
//
// Nil *Metrics and *Tracer values are valid and record nothing.
package observability
