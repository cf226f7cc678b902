package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-ordersync/core"
)

type Action string

const (
	ActionCreateOrder     Action = "create_order"
	ActionConfirmOrder    Action = "confirm_order"
	ActionCancelOrder     Action = "cancel_order"
	ActionAbandon         Action = "abandon"
	ActionAckConfirmation Action = "ack_confirmation"
	ActionNone            Action = "none"
	ActionStall           Action = "stall"
	ActionFlagForReview   Action = "flag_for_review"
)

type Decision struct {
	Action Action
	Next   core.MappingState
	Reason string
}

type ApplyResult struct {
	Outcome core.Outcome
	Mapping core.OrderMapping
	Result  map[string]any
}

// Machine decides and applies reconciliation steps for a single envelope.
// Decide is pure; Apply performs the ERP call and delegates the state
// write to the mapping store under the caller's version fence.
type Machine struct {
	erp      core.ErpClient
	mappings core.MappingStore
}

func NewMachine(erp core.ErpClient, mappings core.MappingStore) *Machine {
	return &Machine{erp: erp, mappings: mappings}
}

// ResolveEntityKey canonicalizes an envelope's entity key to the
// storefront order id that keys the mapping store. ERP events carry the
// ERP order id; until the link exists they stall as not-yet-ready so the
// dispatcher retries once the storefront side lands.
func (m *Machine) ResolveEntityKey(ctx context.Context, envelope core.EventEnvelope) (string, error) {
	if m == nil || m.mappings == nil {
		return "", fmt.Errorf("engine: mapping store is required")
	}
	entityKey := strings.TrimSpace(envelope.EntityKey)
	if entityKey == "" {
		return "", fmt.Errorf("engine: entity key is required")
	}
	if envelope.Source != core.SourceERP {
		return entityKey, nil
	}

	mapping, err := m.mappings.GetByErpOrderID(ctx, entityKey)
	if err != nil {
		if errors.Is(err, core.ErrMappingNotFound) {
			return "", fmt.Errorf("%w: no link yet for erp order %s", core.ErrMappingNotReady, entityKey)
		}
		return "", err
	}
	return mapping.StorefrontOrderID, nil
}

// Decide maps (mapping state, event type) to an action. found=false means
// no mapping exists yet for the entity.
func (m *Machine) Decide(mapping core.OrderMapping, found bool, envelope core.EventEnvelope) (Decision, error) {
	if err := envelope.EventType.Validate(); err != nil {
		return Decision{}, err
	}

	switch envelope.EventType {
	case core.EventOrderCreated:
		if found && mapping.State != core.MappingStatePending {
			return Decision{Action: ActionNone, Next: mapping.State, Reason: "order already mapped"}, nil
		}
		// a pending mapping means an earlier create never reached the erp
		return Decision{Action: ActionCreateOrder, Next: core.MappingStateLinked}, nil

	case core.EventOrderPaid:
		if !found || mapping.State == core.MappingStatePending {
			return Decision{Action: ActionStall, Reason: "payment before erp order exists"}, nil
		}
		switch mapping.State {
		case core.MappingStateLinked:
			return Decision{Action: ActionConfirmOrder, Next: core.MappingStateConfirmed}, nil
		case core.MappingStateConfirmed:
			return Decision{Action: ActionNone, Next: mapping.State, Reason: "order already confirmed"}, nil
		case core.MappingStateAbandoned:
			return Decision{Action: ActionFlagForReview, Reason: "payment arrived for abandoned order"}, nil
		}

	case core.EventOrderCancelled:
		if !found {
			return Decision{Action: ActionStall, Reason: "cancellation before order mapped"}, nil
		}
		switch mapping.State {
		case core.MappingStatePending:
			return Decision{Action: ActionAbandon, Next: core.MappingStateAbandoned}, nil
		case core.MappingStateLinked:
			return Decision{Action: ActionCancelOrder, Next: core.MappingStateAbandoned}, nil
		case core.MappingStateConfirmed:
			return Decision{Action: ActionFlagForReview, Reason: "cancellation arrived after confirmation"}, nil
		case core.MappingStateAbandoned:
			return Decision{Action: ActionNone, Next: mapping.State, Reason: "order already abandoned"}, nil
		}

	case core.EventERPConfirmed:
		if !found || mapping.State == core.MappingStatePending {
			return Decision{Action: ActionStall, Reason: "erp confirmation before link"}, nil
		}
		switch mapping.State {
		case core.MappingStateLinked:
			return Decision{Action: ActionAckConfirmation, Next: core.MappingStateConfirmed}, nil
		case core.MappingStateConfirmed:
			return Decision{Action: ActionNone, Next: mapping.State, Reason: "confirmation already recorded"}, nil
		case core.MappingStateAbandoned:
			return Decision{Action: ActionFlagForReview, Reason: "erp confirmed an abandoned order"}, nil
		}
	}

	return Decision{}, fmt.Errorf("engine: no decision for %s in state %s", envelope.EventType, mapping.State)
}

// Apply loads the current mapping, decides, and executes. Stalls surface
// as core.ErrMappingNotReady so the dispatcher schedules a retry instead
// of dropping the envelope.
func (m *Machine) Apply(ctx context.Context, envelope core.EventEnvelope) (ApplyResult, error) {
	if m == nil || m.mappings == nil {
		return ApplyResult{}, fmt.Errorf("engine: mapping store is required")
	}
	entityKey := strings.TrimSpace(envelope.EntityKey)
	if entityKey == "" {
		return ApplyResult{}, fmt.Errorf("engine: entity key is required")
	}

	mapping, err := m.mappings.Get(ctx, entityKey)
	found := err == nil
	if err != nil && !errors.Is(err, core.ErrMappingNotFound) {
		return ApplyResult{}, err
	}

	decision, err := m.Decide(mapping, found, envelope)
	if err != nil {
		return ApplyResult{}, err
	}

	switch decision.Action {
	case ActionNone:
		return ApplyResult{
			Outcome: core.OutcomeNoop,
			Mapping: mapping,
			Result:  resultFor(mapping, string(core.OutcomeNoop), decision.Reason),
		}, nil

	case ActionStall:
		return ApplyResult{Mapping: mapping}, fmt.Errorf("%w: %s", core.ErrMappingNotReady, decision.Reason)

	case ActionFlagForReview:
		return ApplyResult{
			Outcome: core.OutcomeFlagged,
			Mapping: mapping,
			Result:  resultFor(mapping, string(core.OutcomeFlagged), decision.Reason),
		}, nil

	case ActionCreateOrder:
		return m.applyCreate(ctx, envelope)

	case ActionConfirmOrder:
		if err := m.erpClient().ConfirmSaleOrder(ctx, mapping.ErpOrderID); err != nil {
			return ApplyResult{Mapping: mapping}, err
		}
		updated, err := m.mappings.Transition(ctx, entityKey, mapping.State, core.MappingStateConfirmed, mapping.Version)
		if err != nil {
			return ApplyResult{Mapping: mapping}, err
		}
		return ApplyResult{
			Outcome: core.OutcomeApplied,
			Mapping: updated,
			Result:  resultFor(updated, string(core.OutcomeApplied), ""),
		}, nil

	case ActionCancelOrder:
		if err := m.erpClient().CancelSaleOrder(ctx, mapping.ErpOrderID); err != nil {
			return ApplyResult{Mapping: mapping}, err
		}
		updated, err := m.mappings.Transition(ctx, entityKey, mapping.State, core.MappingStateAbandoned, mapping.Version)
		if err != nil {
			return ApplyResult{Mapping: mapping}, err
		}
		return ApplyResult{
			Outcome: core.OutcomeApplied,
			Mapping: updated,
			Result:  resultFor(updated, string(core.OutcomeApplied), ""),
		}, nil

	case ActionAbandon:
		updated, err := m.mappings.Transition(ctx, entityKey, mapping.State, core.MappingStateAbandoned, mapping.Version)
		if err != nil {
			return ApplyResult{Mapping: mapping}, err
		}
		return ApplyResult{
			Outcome: core.OutcomeApplied,
			Mapping: updated,
			Result:  resultFor(updated, string(core.OutcomeApplied), ""),
		}, nil

	case ActionAckConfirmation:
		updated, err := m.mappings.Transition(ctx, entityKey, mapping.State, core.MappingStateConfirmed, mapping.Version)
		if err != nil {
			return ApplyResult{Mapping: mapping}, err
		}
		return ApplyResult{
			Outcome: core.OutcomeApplied,
			Mapping: updated,
			Result:  resultFor(updated, string(core.OutcomeApplied), ""),
		}, nil
	}

	return ApplyResult{}, fmt.Errorf("engine: unhandled action %q", decision.Action)
}

func (m *Machine) applyCreate(ctx context.Context, envelope core.EventEnvelope) (ApplyResult, error) {
	entityKey := strings.TrimSpace(envelope.EntityKey)
	mapping, created, err := m.mappings.CreatePending(ctx, entityKey)
	if err != nil {
		return ApplyResult{}, err
	}
	if !created && mapping.State != core.MappingStatePending {
		// lost the race to a concurrent create; the winner already linked
		return ApplyResult{
			Outcome: core.OutcomeNoop,
			Mapping: mapping,
			Result:  resultFor(mapping, string(core.OutcomeNoop), "order already mapped"),
		}, nil
	}

	erpOrderID, err := m.erpClient().CreateSaleOrder(ctx, createInputFrom(envelope))
	if err != nil {
		return ApplyResult{Mapping: mapping}, err
	}
	updated, err := m.mappings.AttachErpOrder(ctx, entityKey, erpOrderID, mapping.Version)
	if err != nil {
		return ApplyResult{Mapping: mapping}, err
	}
	return ApplyResult{
		Outcome: core.OutcomeApplied,
		Mapping: updated,
		Result:  resultFor(updated, string(core.OutcomeApplied), ""),
	}, nil
}

func (m *Machine) erpClient() core.ErpClient {
	if m != nil && m.erp != nil {
		return m.erp
	}
	return unreachableErpClient{}
}

func createInputFrom(envelope core.EventEnvelope) core.CreateSaleOrderInput {
	input := core.CreateSaleOrderInput{
		Reference: strings.TrimSpace(envelope.EntityKey),
		Metadata: map[string]any{
			"event_id": envelope.EventID,
		},
	}
	if customer, ok := envelope.Payload["customer_ref"].(string); ok {
		input.PartnerRef = customer
	}
	if lines, ok := envelope.Payload["line_items"].([]any); ok {
		for _, raw := range lines {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			line := core.SaleOrderLine{}
			if ref, ok := item["sku"].(string); ok {
				line.ProductRef = ref
			}
			if qty, ok := item["quantity"].(float64); ok {
				line.Quantity = qty
			}
			if price, ok := item["price"].(float64); ok {
				line.UnitPrice = price
			}
			input.Lines = append(input.Lines, line)
		}
	}
	return input
}

func resultFor(mapping core.OrderMapping, outcome, reason string) map[string]any {
	result := map[string]any{
		"outcome":         outcome,
		"mapping_state":   string(mapping.State),
		"mapping_version": mapping.Version,
	}
	if mapping.ErpOrderID != "" {
		result["erp_order_id"] = mapping.ErpOrderID
	}
	if reason != "" {
		result["reason"] = reason
	}
	return result
}

type unreachableErpClient struct{}

func (unreachableErpClient) CreateSaleOrder(context.Context, core.CreateSaleOrderInput) (string, error) {
	return "", fmt.Errorf("engine: erp client is not configured")
}

func (unreachableErpClient) ConfirmSaleOrder(context.Context, string) error {
	return fmt.Errorf("engine: erp client is not configured")
}

func (unreachableErpClient) CancelSaleOrder(context.Context, string) error {
	return fmt.Errorf("engine: erp client is not configured")
}
