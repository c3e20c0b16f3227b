// Package logger provides structured logging for buildgraph using zerolog.
//
// Components receive a *Logger and tag it with WithComponent; structured
// fields are passed as maps built with Fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//	  output: "stderr"
//
// # Usage
//
//	log := logger.New(&cfg.Logging, "buildgraph").WithComponent("engine")
//	log.Info("computation finished", logger.Fields(logger.FieldKey, key, logger.FieldDuration, d.Milliseconds()))
package logger
