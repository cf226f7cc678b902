// Package gologger bridges the glog logging contracts the service uses
// internally to the go-job contracts the queue worker expects, so both
// sides of the pipeline write through one configured logger.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger names the service and its queue worker resolve under. Named
// loggers keep ingest and worker output distinguishable in shared
// provider setups.
const (
	ServiceLoggerName = "ordersync"
	WorkerLoggerName  = "ordersync-worker"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// JobLogging is the go-job view of a resolved glog pair, ready to hand
// to the queue worker.
type JobLogging struct {
	Provider job.LoggerProvider
	Logger   job.Logger
}

// ResolveWorkerLogging resolves the dispatch worker's logging under
// WorkerLoggerName and bridges it to go-job in one step.
func ResolveWorkerLogging(
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, JobLogging) {
	resolvedProvider, resolvedLogger, jobProvider, jobLogger := ResolveForJob(WorkerLoggerName, provider, logger)
	return resolvedProvider, resolvedLogger, JobLogging{Provider: jobProvider, Logger: jobLogger}
}
