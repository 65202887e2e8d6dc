// Package logging provides structured logging with secret redaction.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging in JSON or text format
//   - Redaction of upstream API keys, bearer tokens and passwords
//   - Context-aware logging with request IDs and limiter metadata
//   - A level that can be changed at runtime (config hot reload)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//
//	logger.Info("upstream call finished",
//	    "status", 200,
//	    "api_key", "sk-live-abc123",  // logged as "sk-l***"
//	)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "forwarding")  // includes request_id
//
// Packages that accept a *slog.Logger get one through Slog(); redaction and
// the runtime level apply to it too.
package logging
