// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventType represents the type of event.
type EventType string

const (
	SwapExecuted    EventType = "swap.executed"
	SwapRejected    EventType = "swap.rejected"
	PoolInitialized EventType = "pool.initialized"
	PoolLockChanged EventType = "pool.lock_changed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SwapExecutedEvent is emitted after both legs of a swap committed.
type SwapExecutedEvent struct {
	BaseEvent
	Pool       solana.PublicKey
	User       solana.PublicKey
	IsX        bool
	AmountIn   uint64
	AmountOut  uint64
	Fee        uint64
	ReserveIn  uint64 // before the swap
	ReserveOut uint64 // before the swap
}

// SwapRejectedEvent is emitted when a swap aborted. Nothing was applied.
type SwapRejectedEvent struct {
	BaseEvent
	Pool         solana.PublicKey
	User         solana.PublicKey
	IsX          bool
	AmountIn     uint64
	MinAmountOut uint64
	Code         string // stable pool error name, empty for ledger failures
	Error        error
}

// PoolInitializedEvent is emitted when a pool config and its vaults were created.
type PoolInitializedEvent struct {
	BaseEvent
	Pool  solana.PublicKey
	MintX solana.PublicKey
	MintY solana.PublicKey
	Fee   uint16
}

// PoolLockChangedEvent is emitted when the admin locks or unlocks a pool.
type PoolLockChangedEvent struct {
	BaseEvent
	Pool   solana.PublicKey
	Locked bool
}
