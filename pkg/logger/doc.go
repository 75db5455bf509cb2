// Package logger builds the process *slog.Logger.
//
// New applies functional options, picks a JSON or text handler and wraps it
// in a decorator that runs ContextExtractor callbacks on every record, so
// request-scoped values (request id, tenant) show up without being passed
// to each log call.
//
// Config carries the environment-driven settings (LOG_LEVEL, LOG_FORMAT,
// LOG_FILE, APP_ENV). When LOG_FILE is set the output is a size-rotated file
// managed by lumberjack.
//
//	log := logger.New(
//	    logger.FromConfig(cfg, "crmkit"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor(), tenant.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "tenant provisioned", logger.TenantID(id), logger.Database(db))
//
// Attribute helpers such as Error and Errors return an empty attribute for nil
// input, so they can be passed unconditionally.
package logger
