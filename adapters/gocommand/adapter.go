// Package gocommand exposes the order reconciliation handlers through
// the go-command registry and dispatcher so callers can drive ingest,
// dispatch, and dead letter operations as bus messages.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	ordersync "github.com/goliatone/go-ordersync"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func unsubscribeAll(subscriptions []commanddispatcher.Subscription) {
	for i := len(subscriptions) - 1; i >= 0; i-- {
		if subscriptions[i] != nil {
			subscriptions[i].Unsubscribe()
		}
	}
}

// RegisterFacadeCommands registers every command handler the facade
// carries, registry and dispatcher both. A failure mid way unsubscribes
// what was already wired so the bus never holds a partial set.
func RegisterFacadeCommands(
	adapter *RegistryAdapter,
	commands ordersync.Commands,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	subscriptions := make([]commanddispatcher.Subscription, 0, 4)
	register := func(wire func() (commanddispatcher.Subscription, error)) error {
		subscription, err := wire()
		if err != nil {
			unsubscribeAll(subscriptions)
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := register(func() (commanddispatcher.Subscription, error) {
		return RegisterAndSubscribe(adapter, commands.IngestEvent, runnerOpts...)
	}); err != nil {
		return nil, err
	}
	if err := register(func() (commanddispatcher.Subscription, error) {
		return RegisterAndSubscribe(adapter, commands.DispatchEvent, runnerOpts...)
	}); err != nil {
		return nil, err
	}
	if err := register(func() (commanddispatcher.Subscription, error) {
		return RegisterAndSubscribe(adapter, commands.EnqueueEvent, runnerOpts...)
	}); err != nil {
		return nil, err
	}
	if err := register(func() (commanddispatcher.Subscription, error) {
		return RegisterAndSubscribe(adapter, commands.ResubmitDeadLetter, runnerOpts...)
	}); err != nil {
		return nil, err
	}

	return subscriptions, nil
}

// RegisterFacadeQueries mirrors RegisterFacadeCommands for the read
// side handlers.
func RegisterFacadeQueries(
	adapter *RegistryAdapter,
	queries ordersync.Queries,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	subscriptions := make([]commanddispatcher.Subscription, 0, 3)
	register := func(wire func() (commanddispatcher.Subscription, error)) error {
		subscription, err := wire()
		if err != nil {
			unsubscribeAll(subscriptions)
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := register(func() (commanddispatcher.Subscription, error) {
		return RegisterAndSubscribeQuery(adapter, queries.OrderTimeline, runnerOpts...)
	}); err != nil {
		return nil, err
	}
	if err := register(func() (commanddispatcher.Subscription, error) {
		return RegisterAndSubscribeQuery(adapter, queries.GetMapping, runnerOpts...)
	}); err != nil {
		return nil, err
	}
	if err := register(func() (commanddispatcher.Subscription, error) {
		return RegisterAndSubscribeQuery(adapter, queries.ListDeadLetters, runnerOpts...)
	}); err != nil {
		return nil, err
	}

	return subscriptions, nil
}
