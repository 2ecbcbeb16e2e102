// Package logging provides structured logging for the MPLP runtime.
//
// It wraps log/slog to emit JSON lines with persistent context attributes, so
// that a single runtime.log can be filtered by component, module or workflow
// after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/mplp", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithComponent("orchestrator").
//	    WithWorkflow("wf-1").
//	    Info("workflow created", "stages", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"workflow created","component":"orchestrator","workflow_id":"wf-1","stages":3}
//
// # Null Logger
//
// Every runtime component accepts a *Logger and substitutes [NopLogger] when
// given nil, so business code never checks for a missing logger.
//
// # Log Rotation
//
// [NewLoggerWithRotation] backs the logger with a [RotatingWriter]. Rotated
// files are named runtime.log.1 (newest) through runtime.log.N and are
// gzip-compressed when [RotationConfig.Compress] is set.
package logging
