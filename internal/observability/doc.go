// Package observability holds the logging and metrics plumbing shared by
// the server and worker binaries: zerolog construction from configuration,
// Prometheus collectors for jobs, tasks, LLM calls, and the outbox, a
// zerolog adapter for the Temporal SDK, and request id propagation through
// contexts.
//
// Loggers are built once at startup and passed down by value:
//
//	logger := observability.NewLogger(cfg.Logging)
//	jobLogger := observability.WithJobContext(logger, jobID, projectID)
//
// HTTP middleware stores the request correlation id with WithRequestID;
// anything running under that request reads it back with
// RequestIDFromContext and stamps it as correlation_id. Job lifecycle lines
// carry job_id and project_id so a job can be followed across the server,
// the worker, and the outbox publisher.
//
// All components are safe for concurrent use.
package observability
