package ordersync

import (
	"strings"

	"github.com/goliatone/go-ordersync/clients/erp"
	"github.com/goliatone/go-ordersync/core"
	"github.com/goliatone/go-ordersync/engine"
	"github.com/goliatone/go-ordersync/gate"
	"github.com/goliatone/go-ordersync/ingest"
	"github.com/goliatone/go-ordersync/ledger"
	memorystore "github.com/goliatone/go-ordersync/store/memory"
	"github.com/goliatone/go-ordersync/timeline"
)

type Config = core.Config

type RetryConfig = core.RetryConfig
type LedgerConfig = core.LedgerConfig
type GateConfig = core.GateConfig
type ErpConfig = core.ErpConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type EventEnvelope = core.EventEnvelope
type DispatchResult = core.DispatchResult
type OrderMapping = core.OrderMapping
type TimelineEntry = core.TimelineEntry
type DeadLetterRecord = core.DeadLetterRecord
type DeadLetterFilter = core.DeadLetterFilter

type IdempotencyLedger = core.IdempotencyLedger
type EntityLocker = core.EntityLocker
type MappingStore = core.MappingStore
type TimelineStore = core.TimelineStore
type DeadLetterStore = core.DeadLetterStore
type ErpClient = core.ErpClient
type Normalizer = core.Normalizer
type EventDispatcher = core.EventDispatcher

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithIdempotencyLedger = core.WithIdempotencyLedger
	WithEntityLocker      = core.WithEntityLocker
	WithRetryScheduler    = core.WithRetryScheduler
	WithMappingStore      = core.WithMappingStore
	WithTimelineStore     = core.WithTimelineStore
	WithDeadLetterStore   = core.WithDeadLetterStore
	WithErpClient         = core.WithErpClient
	WithNormalizer        = core.WithNormalizer
	WithEventDispatcher   = core.WithEventDispatcher
	WithJobEnqueuer       = core.WithJobEnqueuer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup builds a service and fills every dependency the caller left out
// with a process-local default: memory ledger, locker, stores, the JSON
// normalizer, and an inline dispatcher tuned from the resolved config.
// An ERP client is constructed only when an endpoint is configured.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	svc, err := core.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	deps := svc.Dependencies()
	resolved := svc.Config()

	extra := make([]core.Option, 0, 8)

	idempotencyLedger := deps.Ledger
	if idempotencyLedger == nil {
		idempotencyLedger = ledger.NewMemoryLedger(resolved.Ledger.DedupWindow)
		extra = append(extra, core.WithIdempotencyLedger(idempotencyLedger))
	}
	entityLocker := deps.EntityLocker
	if entityLocker == nil {
		entityLocker = gate.NewMemoryEntityLocker()
		extra = append(extra, core.WithEntityLocker(entityLocker))
	}
	mappingStore := deps.MappingStore
	if mappingStore == nil {
		mappingStore = memorystore.NewMappingStore()
		extra = append(extra, core.WithMappingStore(mappingStore))
	}
	timelineStore := deps.TimelineStore
	if timelineStore == nil {
		timelineStore = timeline.NewMemoryStore()
		extra = append(extra, core.WithTimelineStore(timelineStore))
	}
	deadLetterStore := deps.DeadLetterStore
	if deadLetterStore == nil {
		deadLetterStore = memorystore.NewDeadLetterStore()
		extra = append(extra, core.WithDeadLetterStore(deadLetterStore))
	}
	if deps.Normalizer == nil {
		extra = append(extra, core.WithNormalizer(ingest.NewNormalizer()))
	}
	scheduler := deps.RetryScheduler
	if scheduler == nil {
		scheduler = engine.ExponentialBackoffScheduler{
			Initial: resolved.Retry.InitialBackoff,
			Max:     resolved.Retry.MaxBackoff,
			Jitter:  resolved.Retry.Jitter,
		}
		extra = append(extra, core.WithRetryScheduler(scheduler))
	}
	erpClient := deps.ErpClient
	if erpClient == nil && strings.TrimSpace(resolved.Erp.Endpoint) != "" {
		client, clientErr := erp.NewClient(erp.Config{
			Endpoint: resolved.Erp.Endpoint,
			Database: resolved.Erp.Database,
			Username: resolved.Erp.Username,
			APIKey:   resolved.Erp.APIKey,
			Timeout:  resolved.Erp.Timeout,
		})
		if clientErr != nil {
			return nil, clientErr
		}
		erpClient = client
		extra = append(extra, core.WithErpClient(client))
	}
	if deps.Dispatcher == nil {
		dispatcher := engine.NewDispatcher(
			engine.NewMachine(erpClient, mappingStore),
			idempotencyLedger,
			entityLocker,
			timelineStore,
			deadLetterStore,
		)
		dispatcher.Scheduler = scheduler
		dispatcher.MaxAttempts = resolved.Retry.MaxAttempts
		dispatcher.ClaimLease = resolved.Ledger.ClaimLease
		dispatcher.LockTTL = resolved.Gate.LockTTL
		dispatcher.LockWait = resolved.Gate.AcquireWait
		dispatcher.Logger = deps.Logger
		extra = append(extra, core.WithEventDispatcher(dispatcher))
	}

	if len(extra) == 0 {
		return svc, nil
	}
	return core.NewService(cfg, append(opts, extra...)...)
}
