package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	ledger            IdempotencyLedger
	entityLocker      EntityLocker
	retryScheduler    RetryScheduler
	mappingStore      MappingStore
	timelineStore     TimelineStore
	deadLetterStore   DeadLetterStore
	erpClient         ErpClient
	normalizer        Normalizer
	dispatcher        EventDispatcher
	jobEnqueuer       JobEnqueuer
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Ledger            IdempotencyLedger
	EntityLocker      EntityLocker
	RetryScheduler    RetryScheduler
	MappingStore      MappingStore
	TimelineStore     TimelineStore
	DeadLetterStore   DeadLetterStore
	ErpClient         ErpClient
	Normalizer        Normalizer
	Dispatcher        EventDispatcher
	JobEnqueuer       JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("ordersync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("ordersync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if built, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = built
		}
		if storeProvider != nil {
			if builder.mappingStore == nil {
				builder.mappingStore = storeProvider.MappingStore()
			}
			if builder.ledger == nil {
				builder.ledger = storeProvider.IdempotencyLedger()
			}
			if builder.timelineStore == nil {
				builder.timelineStore = storeProvider.TimelineStore()
			}
			if builder.deadLetterStore == nil {
				builder.deadLetterStore = storeProvider.DeadLetterStore()
			}
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		ledger:            builder.ledger,
		entityLocker:      builder.entityLocker,
		retryScheduler:    builder.retryScheduler,
		mappingStore:      builder.mappingStore,
		timelineStore:     builder.timelineStore,
		deadLetterStore:   builder.deadLetterStore,
		erpClient:         builder.erpClient,
		normalizer:        builder.normalizer,
		dispatcher:        builder.dispatcher,
		jobEnqueuer:       builder.jobEnqueuer,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Ledger:            s.ledger,
		EntityLocker:      s.entityLocker,
		RetryScheduler:    s.retryScheduler,
		MappingStore:      s.mappingStore,
		TimelineStore:     s.timelineStore,
		DeadLetterStore:   s.deadLetterStore,
		ErpClient:         s.erpClient,
		Normalizer:        s.normalizer,
		Dispatcher:        s.dispatcher,
		JobEnqueuer:       s.jobEnqueuer,
	}
}

// IngestEvent normalizes one raw source payload and hands the resulting
// envelope to the dispatcher. Unidentifiable payloads fail here and are
// never queued or retried.
func (s *Service) IngestEvent(ctx context.Context, source Source, payload []byte, headers map[string]string) (result DispatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"source": string(source)}
	defer func() {
		s.observeOperation(ctx, startedAt, "ingest", err, fields)
	}()

	if s == nil || s.normalizer == nil {
		err = s.mapError(fmt.Errorf("core: normalizer is required"))
		return DispatchResult{}, err
	}
	envelope, err := s.normalizer.Normalize(ctx, source, payload, headers)
	if err != nil {
		err = s.mapError(err)
		return DispatchResult{}, err
	}
	fields["event_type"] = string(envelope.EventType)
	fields["entity_key"] = envelope.EntityKey

	result, err = s.dispatchEnvelope(ctx, envelope)
	if err != nil {
		return result, err
	}
	fields["outcome"] = string(result.Outcome)
	return result, nil
}

// DispatchEvent runs one canonical envelope through the reconciliation
// pipeline.
func (s *Service) DispatchEvent(ctx context.Context, envelope EventEnvelope) (result DispatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"source":     string(envelope.Source),
		"event_type": string(envelope.EventType),
		"entity_key": envelope.EntityKey,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "dispatch", err, fields)
	}()

	result, err = s.dispatchEnvelope(ctx, envelope)
	if err != nil {
		return result, err
	}
	fields["outcome"] = string(result.Outcome)
	return result, nil
}

func (s *Service) dispatchEnvelope(ctx context.Context, envelope EventEnvelope) (DispatchResult, error) {
	if s == nil || s.dispatcher == nil {
		return DispatchResult{}, s.mapError(fmt.Errorf("core: event dispatcher is required"))
	}
	if err := envelope.Validate(); err != nil {
		return DispatchResult{}, s.mapError(err)
	}
	result, err := s.dispatcher.Dispatch(ctx, envelope)
	if err != nil {
		return result, s.mapError(err)
	}
	return result, nil
}

// EnqueueEvent hands a canonical envelope to the queue transport instead
// of dispatching inline. The idempotency key doubles as the queue dedup
// key.
func (s *Service) EnqueueEvent(ctx context.Context, envelope EventEnvelope) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"source":     string(envelope.Source),
		"event_type": string(envelope.EventType),
		"entity_key": envelope.EntityKey,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "enqueue", err, fields)
	}()

	if s == nil || s.jobEnqueuer == nil {
		err = s.mapError(fmt.Errorf("core: job enqueuer is required"))
		return err
	}
	if err = envelope.Validate(); err != nil {
		err = s.mapError(err)
		return err
	}
	err = s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:          "ordersync.event.dispatch",
		Parameters:     EnvelopeToParameters(envelope),
		IdempotencyKey: envelope.IdempotencyKey,
		DedupPolicy:    "drop",
	})
	if err != nil {
		err = s.mapError(err)
	}
	return err
}

func (s *Service) Mapping(ctx context.Context, storefrontOrderID string) (mapping OrderMapping, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"entity_key": storefrontOrderID}
	defer func() {
		s.observeOperation(ctx, startedAt, "mapping_get", err, fields)
	}()

	if s == nil || s.mappingStore == nil {
		err = s.mapError(fmt.Errorf("core: mapping store is required"))
		return OrderMapping{}, err
	}
	if strings.TrimSpace(storefrontOrderID) == "" {
		err = s.mapError(fmt.Errorf("core: storefront order id is required"))
		return OrderMapping{}, err
	}
	mapping, err = s.mappingStore.Get(ctx, storefrontOrderID)
	if err != nil {
		err = s.mapError(err)
		return OrderMapping{}, err
	}
	return mapping, nil
}

func (s *Service) Timeline(ctx context.Context, entityKey string) (entries []TimelineEntry, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"entity_key": entityKey}
	defer func() {
		s.observeOperation(ctx, startedAt, "timeline", err, fields)
	}()

	if s == nil || s.timelineStore == nil {
		err = s.mapError(fmt.Errorf("core: timeline store is required"))
		return nil, err
	}
	if strings.TrimSpace(entityKey) == "" {
		err = s.mapError(fmt.Errorf("core: entity key is required"))
		return nil, err
	}
	entries, err = s.timelineStore.Timeline(ctx, entityKey)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return entries, nil
}

func (s *Service) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) (records []DeadLetterRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"entity_key": filter.EntityKey}
	defer func() {
		s.observeOperation(ctx, startedAt, "dead_letter_list", err, fields)
	}()

	if s == nil || s.deadLetterStore == nil {
		err = s.mapError(fmt.Errorf("core: dead letter store is required"))
		return nil, err
	}
	records, err = s.deadLetterStore.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return records, nil
}

// ResubmitDeadLetter replays a dead-lettered envelope through the
// dispatcher. Dead-lettering settles the envelope's claim, so the key is
// released first; without that the replay would dedupe against the
// cached dead letter result and never reach the ERP.
func (s *Service) ResubmitDeadLetter(ctx context.Context, id string) (result DispatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"dead_letter_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "dead_letter_resubmit", err, fields)
	}()

	if s == nil || s.deadLetterStore == nil {
		err = s.mapError(fmt.Errorf("core: dead letter store is required"))
		return DispatchResult{}, err
	}
	if strings.TrimSpace(id) == "" {
		err = s.mapError(fmt.Errorf("core: dead letter id is required"))
		return DispatchResult{}, err
	}
	record, err := s.deadLetterStore.Get(ctx, id)
	if err != nil {
		err = s.mapError(err)
		return DispatchResult{}, err
	}
	fields["entity_key"] = record.Envelope.EntityKey

	if s.ledger != nil {
		if releaseErr := s.ledger.Release(ctx, record.Envelope.IdempotencyKey); releaseErr != nil {
			err = s.mapError(releaseErr)
			return DispatchResult{}, err
		}
	}

	result, err = s.dispatchEnvelope(ctx, record.Envelope)
	if err != nil {
		return result, err
	}
	if _, markErr := s.deadLetterStore.MarkResubmitted(ctx, id); markErr != nil {
		err = s.mapError(markErr)
		return result, err
	}
	fields["outcome"] = string(result.Outcome)
	return result, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
