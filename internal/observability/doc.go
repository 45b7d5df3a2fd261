// Package observability provides the kernel's logging and metrics
// surface: a redacting slog wrapper (RedactingHandler, wrapped into a
// plain *slog.Logger by NewRedactingLogger) and a Prometheus
// collector (Metrics) shared by the bus, registry, external tool
// client, and broker.
package observability
