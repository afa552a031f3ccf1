package settlement

import (
	"errors"
	"strconv"

	"github.com/google/uuid"
)

// Reason codes surfaced to callers of the close operation
const (
	ReasonSettlementNotFound  = "SETTLEMENT_NOT_FOUND"
	ReasonNotPermitted        = "NOT_PERMITTED"
	ReasonSettlementNotOpen   = "SETTLEMENT_NOT_OPEN"
	ReasonNoParticipants      = "NO_PARTICIPANTS"
	ReasonSnapshotNotFound    = "SNAPSHOT_NOT_FOUND"
	ReasonConflict            = "CONCURRENT_MODIFICATION"
	ReasonInternalConsistency = "INTERNAL_CONSISTENCY"
	ReasonUnknown             = "UNKNOWN_ERROR"
)

// ErrSettlementNotFound indicates the settlement does not exist or is deleted
type ErrSettlementNotFound struct {
	SettlementID uuid.UUID
}

func (e ErrSettlementNotFound) Error() string {
	return "settlement not found: " + e.SettlementID.String()
}

// Is matches any ErrSettlementNotFound when the target carries no id
func (e ErrSettlementNotFound) Is(target error) bool {
	t, ok := target.(ErrSettlementNotFound)
	if !ok {
		return false
	}
	return t.SettlementID == uuid.Nil || e.SettlementID == t.SettlementID
}

// ErrNotPermitted indicates the caller may not close the settlement
type ErrNotPermitted struct {
	SettlementID uuid.UUID
	UserID       string
}

func (e ErrNotPermitted) Error() string {
	return "user " + e.UserID + " is not permitted to close settlement " + e.SettlementID.String()
}

func (e ErrNotPermitted) Is(target error) bool {
	t, ok := target.(ErrNotPermitted)
	if !ok {
		return false
	}
	return t.SettlementID == uuid.Nil || e.SettlementID == t.SettlementID
}

// ErrSettlementClosed indicates the settlement is no longer open
type ErrSettlementClosed struct {
	SettlementID uuid.UUID
}

func (e ErrSettlementClosed) Error() string {
	return "settlement is not open: " + e.SettlementID.String()
}

func (e ErrSettlementClosed) Is(target error) bool {
	t, ok := target.(ErrSettlementClosed)
	if !ok {
		return false
	}
	return t.SettlementID == uuid.Nil || e.SettlementID == t.SettlementID
}

// ErrNoParticipants indicates there is nobody to settle between
type ErrNoParticipants struct {
	SettlementID uuid.UUID
}

func (e ErrNoParticipants) Error() string {
	return "settlement has no participants: " + e.SettlementID.String()
}

func (e ErrNoParticipants) Is(target error) bool {
	t, ok := target.(ErrNoParticipants)
	if !ok {
		return false
	}
	return t.SettlementID == uuid.Nil || e.SettlementID == t.SettlementID
}

// ErrUnbalanced indicates balances that do not sum to zero
type ErrUnbalanced struct {
	Sum int64
}

func (e ErrUnbalanced) Error() string {
	return "balances do not sum to zero: " + strconv.FormatInt(e.Sum, 10)
}

func (e ErrUnbalanced) Is(target error) bool {
	_, ok := target.(ErrUnbalanced)
	return ok
}

// ErrUnknownParticipant indicates an expense referencing someone outside the settlement
type ErrUnknownParticipant struct {
	ParticipantID ParticipantID
}

func (e ErrUnknownParticipant) Error() string {
	return "unknown participant: " + string(e.ParticipantID)
}

func (e ErrUnknownParticipant) Is(target error) bool {
	t, ok := target.(ErrUnknownParticipant)
	if !ok {
		return false
	}
	return t.ParticipantID == "" || e.ParticipantID == t.ParticipantID
}

// ErrInvalidExpense indicates an expense row that breaks the amount or share rules
type ErrInvalidExpense struct {
	ExpenseID uuid.UUID
	Reason    string
}

func (e ErrInvalidExpense) Error() string {
	return "invalid expense " + e.ExpenseID.String() + ": " + e.Reason
}

func (e ErrInvalidExpense) Is(target error) bool {
	t, ok := target.(ErrInvalidExpense)
	if !ok {
		return false
	}
	return t.ExpenseID == uuid.Nil || e.ExpenseID == t.ExpenseID
}

// ErrConcurrentModification indicates the settlement changed between validation and
// the open-to-closed transition. Retrying the close is safe.
type ErrConcurrentModification struct {
	SettlementID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for settlement: " + e.SettlementID.String()
}

func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	return t.SettlementID == uuid.Nil || e.SettlementID == t.SettlementID
}

// ErrSnapshotNotFound indicates no snapshot has been written for the settlement
type ErrSnapshotNotFound struct {
	SettlementID uuid.UUID
}

func (e ErrSnapshotNotFound) Error() string {
	return "snapshot not found for settlement: " + e.SettlementID.String()
}

func (e ErrSnapshotNotFound) Is(target error) bool {
	t, ok := target.(ErrSnapshotNotFound)
	if !ok {
		return false
	}
	return t.SettlementID == uuid.Nil || e.SettlementID == t.SettlementID
}

// ErrInternalConsistency wraps arithmetic or precondition failures. These are
// never the caller's fault and are reported generically.
type ErrInternalConsistency struct {
	SettlementID uuid.UUID
	Err          error
}

func (e ErrInternalConsistency) Error() string {
	return "internal consistency failure for settlement " + e.SettlementID.String() + ": " + e.Err.Error()
}

func (e ErrInternalConsistency) Unwrap() error {
	return e.Err
}

func (e ErrInternalConsistency) Is(target error) bool {
	_, ok := target.(ErrInternalConsistency)
	return ok
}

// IsValidationError reports whether err is a user-facing rejection of the close request
func IsValidationError(err error) bool {
	return errors.Is(err, ErrSettlementNotFound{}) ||
		errors.Is(err, ErrNotPermitted{}) ||
		errors.Is(err, ErrSettlementClosed{}) ||
		errors.Is(err, ErrNoParticipants{})
}

// ReasonCode maps an error to its stable reason code
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSettlementNotFound{}):
		return ReasonSettlementNotFound
	case errors.Is(err, ErrNotPermitted{}):
		return ReasonNotPermitted
	case errors.Is(err, ErrSettlementClosed{}):
		return ReasonSettlementNotOpen
	case errors.Is(err, ErrNoParticipants{}):
		return ReasonNoParticipants
	case errors.Is(err, ErrSnapshotNotFound{}):
		return ReasonSnapshotNotFound
	case errors.Is(err, ErrConcurrentModification{}):
		return ReasonConflict
	case errors.Is(err, ErrInternalConsistency{}):
		return ReasonInternalConsistency
	default:
		return ReasonUnknown
	}
}
