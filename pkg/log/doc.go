/*
Package log provides structured logging for beacon using zerolog.

A single global logger is configured once with Init. Packages derive child
loggers from it with WithComponent so that every line names the part of the
pipeline it came from:

	{"level":"debug","component":"queue","group":"regular","name":"Purchase","message":"Event persisted"}

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})

	logger := log.WithComponent("network")
	logger.Warn().Err(err).Dur("retry_in", delay).Msg("Flush failed")

	// add the event group to an existing component logger
	groupLogger := log.WithGroup(logger, "push_viewed")

Until Init is called the global logger discards everything, which keeps
library use and tests quiet.

# Levels

  - debug: per-event decisions (dropped, deferred, persisted, batch sent)
  - info: lifecycle (coordinator started, offline mode changed)
  - warn: recoverable failures (flush failed, profile field rejected)
  - error: lost events and recovered panics
*/
package log
