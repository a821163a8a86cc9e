// Package lifecycle описывает внешнее хранилище жизненного цикла сервисов (конечный автомат)
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
)

// Состояния элемента, которые важны для синхронизации ревью
const (
	StateApproved = "approved"
	StateRejected = "rejected"
	StateDeleted  = "deleted"
)

// Действия автомата
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Item снимок состояния сервиса в автомате
type Item struct {
	ID      string          `json:"id"`
	Version string          `json:"version,omitempty"`
	State   string          `json:"state"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Deleted сообщает, что сервис удален и переходы к нему не применяются
func (i Item) Deleted() bool {
	return i.State == StateDeleted
}

// ApproveData данные действия approve
type ApproveData struct {
	ApprovalDate string `json:"approvalDate"`
}

// RejectData данные действия reject
type RejectData struct {
	Reason string `json:"reason"`
}

// Store операции автомата, которые потребляет синхронизация
type Store interface {
	Fetch(ctx context.Context, serviceID string) (*Item, bool, error)
	Apply(ctx context.Context, action, serviceID string, data any) (*Item, error)
	Override(ctx context.Context, serviceID string, item Item) (*Item, error)
}

// FsmErrorKind закрытый набор ошибок автомата
type FsmErrorKind string

const (
	NoApplicableTransition    FsmErrorKind = "NoApplicableTransition"
	NoTransitionMatched       FsmErrorKind = "NoTransitionMatched"
	TooManyTransitionsMatched FsmErrorKind = "TooManyTransitionsMatched"
	TransitionExecutionError  FsmErrorKind = "TransitionExecutionError"
	StoreFetchError           FsmErrorKind = "StoreFetchError"
	StoreSaveError            FsmErrorKind = "StoreSaveError"
	ItemNotFound              FsmErrorKind = "ItemNotFound"
)

// ParseFsmErrorKind разбирает вид ошибки из ответа автомата
func ParseFsmErrorKind(s string) (FsmErrorKind, error) {
	switch k := FsmErrorKind(s); k {
	case NoApplicableTransition, NoTransitionMatched, TooManyTransitionsMatched,
		TransitionExecutionError, StoreFetchError, StoreSaveError, ItemNotFound:
		return k, nil
	default:
		return "", fmt.Errorf("unknown fsm error kind %q", s)
	}
}

// Tolerant ошибки, после которых ревью все равно считается отраженным:
// решение из трекера устарело или продублировано
func (k FsmErrorKind) Tolerant() bool {
	switch k {
	case NoTransitionMatched, TooManyTransitionsMatched:
		return true
	case NoApplicableTransition, TransitionExecutionError, StoreFetchError, StoreSaveError, ItemNotFound:
		return false
	default:
		return false
	}
}

// FsmError ошибка применения перехода
type FsmError struct {
	Kind    FsmErrorKind
	Message string
}

func (e *FsmError) Error() string {
	if e.Message == "" {
		return "fsm: " + string(e.Kind)
	}
	return fmt.Sprintf("fsm: %s: %s", e.Kind, e.Message)
}
