package store

import "github.com/docker/go-metrics"

const metricsNamespace = "radiumfs"

var engineNamespace = metrics.NewNamespace(metricsNamespace, "store", nil)

var (
	buildsStartedCounter = engineNamespace.NewLabeledCounter("builds_started", "The number of builds entered (cache misses), by kind", "kind")
	cacheHitsCounter     = engineNamespace.NewLabeledCounter("cache_hits", "The number of ensure calls served from cache, by kind", "kind")
	buildErrorsCounter   = engineNamespace.NewLabeledCounter("build_errors", "The number of builds that failed, by kind", "kind")
	commandsCounter      = engineNamespace.NewLabeledCounter("commands", "The number of commands executed successfully, by kind", "kind")
	commandErrorsCounter = engineNamespace.NewLabeledCounter("command_errors", "The number of commands that failed, by kind", "kind")
	activeBuildsGauge    = engineNamespace.NewGauge("active_builds", "The number of builds currently in flight", metrics.Total)
)

func init() {
	metrics.Register(engineNamespace)
}
