package rental

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransitionKind names a lifecycle operation.
type TransitionKind string

const (
	TransitionConfirmReturn TransitionKind = "confirm_return"
	TransitionCompleteEarly TransitionKind = "complete_early"
	TransitionExtend        TransitionKind = "extend"
	TransitionCancel        TransitionKind = "cancel"
	TransitionReactivate    TransitionKind = "reactivate"
)

type transitionRule struct {
	from map[Status]struct{}
	to   Status
}

// Reactivation deliberately excludes cancelled rentals.
var transitions = map[TransitionKind]transitionRule{
	TransitionConfirmReturn: {from: map[Status]struct{}{StatusActive: {}}, to: StatusCompleted},
	TransitionCompleteEarly: {from: map[Status]struct{}{StatusActive: {}}, to: StatusCompleted},
	TransitionExtend:        {from: map[Status]struct{}{StatusActive: {}}, to: StatusActive},
	TransitionCancel:        {from: map[Status]struct{}{StatusActive: {}}, to: StatusCancelled},
	TransitionReactivate:    {from: map[Status]struct{}{StatusCompleted: {}}, to: StatusActive},
}

// CanTransition reports whether kind is allowed from the given status.
func CanTransition(kind TransitionKind, from Status) bool {
	rule, ok := transitions[kind]
	if !ok {
		return false
	}
	_, ok = rule.from[from]
	return ok
}

// TargetStatus returns the status a successful transition leaves the rental in.
func TargetStatus(kind TransitionKind) (Status, bool) {
	rule, ok := transitions[kind]
	return rule.to, ok
}

// Command carries a transition and its parameters. Fields irrelevant to the
// kind are ignored.
type Command struct {
	Kind          TransitionKind
	Days          int
	NewTotalValue decimal.Decimal
	Abatement     decimal.Decimal
	NewFinalValue *decimal.Decimal
	ReturnDate    *time.Time
	Reason        string
}

// ConfirmReturn builds a confirm-return command. A nil date means "now".
func ConfirmReturn(returnDate *time.Time) Command {
	return Command{Kind: TransitionConfirmReturn, ReturnDate: returnDate}
}

// CompleteEarly builds an early-termination command.
func CompleteEarly(newFinalValue *decimal.Decimal, abatement decimal.Decimal, reason string) Command {
	return Command{Kind: TransitionCompleteEarly, NewFinalValue: newFinalValue, Abatement: abatement, Reason: reason}
}

// Extend builds an extension command.
func Extend(days int, newTotalValue, abatement decimal.Decimal, reason string) Command {
	return Command{Kind: TransitionExtend, Days: days, NewTotalValue: newTotalValue, Abatement: abatement, Reason: reason}
}

// Cancel builds a cancel command.
func Cancel(reason string) Command {
	return Command{Kind: TransitionCancel, Reason: reason}
}

// Reactivate builds a reactivate command.
func Reactivate() Command {
	return Command{Kind: TransitionReactivate}
}

// Outcome is the result of a successful transition: the new rental value plus
// the inventory side effects the caller must apply once it is persisted.
type Outcome struct {
	Kind    TransitionKind
	Rental  Rental
	Intents []InventoryIntent
}

// Apply validates cmd against r and returns the transformed copy. r itself is
// never modified; on error the returned Outcome is empty.
func Apply(r Rental, cmd Command, now time.Time) (Outcome, error) {
	if _, ok := transitions[cmd.Kind]; !ok {
		return Outcome{}, invalid("transition", "unknown transition %q", cmd.Kind)
	}
	if !CanTransition(cmd.Kind, r.Status) {
		return Outcome{}, illegalFrom(cmd.Kind, r.Status)
	}

	next := r.Clone()
	var intents []InventoryIntent
	var err error
	switch cmd.Kind {
	case TransitionConfirmReturn:
		err = confirmReturn(&next, cmd, now)
		intents = intentsFor(IntentRelease, next.Items)
	case TransitionCompleteEarly:
		err = completeEarly(&next, cmd, now)
		intents = intentsFor(IntentRelease, next.Items)
	case TransitionExtend:
		err = extend(&next, cmd, now)
	case TransitionCancel:
		next.Status = StatusCancelled
		if reason := strings.TrimSpace(cmd.Reason); reason != "" {
			next.AdjustmentReason = reason
		}
		intents = intentsFor(IntentRelease, next.Items)
	case TransitionReactivate:
		next.Status = StatusActive
		next.ReturnDate = nil
		intents = intentsFor(IntentReserve, next.Items)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: cmd.Kind, Rental: next, Intents: intents}, nil
}

func illegalFrom(kind TransitionKind, from Status) *ValidationError {
	if kind == TransitionReactivate && from == StatusCancelled {
		return invalid("status", "cancelled rentals cannot be reactivated")
	}
	return invalid("status", "cannot %s a rental that is %s", strings.ReplaceAll(string(kind), "_", " "), from)
}

func resolveReturnDate(r *Rental, explicit *time.Time, now time.Time) (time.Time, error) {
	day := Today(now)
	if explicit != nil && !explicit.IsZero() {
		day = DateOnly(*explicit)
	}
	if !r.StartDate.IsZero() && day.Before(DateOnly(r.StartDate)) {
		return time.Time{}, invalid("return_date", "must not be before start date")
	}
	return day, nil
}

func confirmReturn(r *Rental, cmd Command, now time.Time) error {
	day, err := resolveReturnDate(r, cmd.ReturnDate, now)
	if err != nil {
		return err
	}
	r.Status = StatusCompleted
	r.ReturnDate = &day
	return nil
}

func completeEarly(r *Rental, cmd Command, now time.Time) error {
	if cmd.NewFinalValue != nil && cmd.NewFinalValue.IsNegative() {
		return invalid("new_final_value", "must not be negative")
	}
	if cmd.Abatement.IsNegative() {
		return invalid("abatement", "must not be negative")
	}
	if cmd.NewFinalValue != nil && cmd.Abatement.GreaterThan(*cmd.NewFinalValue) {
		return invalid("abatement", "must not exceed the new final value")
	}
	day, err := resolveReturnDate(r, cmd.ReturnDate, now)
	if err != nil {
		return err
	}

	r.Status = StatusCompleted
	r.ReturnDate = &day
	if r.CurrentEndDate.IsZero() || day.Before(DateOnly(r.CurrentEndDate)) {
		r.CurrentEndDate = day
	}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		r.AdjustmentReason = reason
	}
	if cmd.NewFinalValue != nil {
		receivable := cmd.NewFinalValue.Sub(cmd.Abatement)
		r.AmountReceivableFinal = receivable
		r.TotalValue = r.AmountPaidAtDelivery.Add(*cmd.NewFinalValue)
		r.Abatement = cmd.Abatement
		r.RevisedTotalValue = nil
		adjusted := Today(now)
		r.ExtensionDate = &adjusted
	}
	return nil
}

func extend(r *Rental, cmd Command, now time.Time) error {
	if cmd.Days < 1 {
		return invalid("days", "must be at least 1")
	}
	if cmd.NewTotalValue.IsNegative() {
		return invalid("new_total_value", "must not be negative")
	}
	if cmd.Abatement.IsNegative() {
		return invalid("abatement", "must not be negative")
	}
	if cmd.Abatement.GreaterThan(cmd.NewTotalValue) {
		return invalid("abatement", "must not exceed the new total value")
	}

	end := r.CurrentEndDate
	if end.IsZero() {
		end = r.OriginalEndDate
	}
	if end.IsZero() {
		computed, ok := ComputeEndDate(r.StartDate, r.AgreedDays)
		if !ok {
			return invalid("current_end_date", "rental has no end date to extend")
		}
		end = computed
	}

	total := cmd.NewTotalValue
	extendedOn := Today(now)
	r.CurrentEndDate = AddDays(end, cmd.Days)
	r.RevisedTotalValue = &total
	r.Abatement = cmd.Abatement
	r.AmountReceivableFinal = total.Sub(cmd.Abatement)
	r.ExtensionDate = &extendedOn
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		r.AdjustmentReason = reason
	}
	return nil
}

// ============================================================================
// CREATION
// ============================================================================

// NewRentalInput describes a rental being registered.
type NewRentalInput struct {
	ClientID             int64
	ClientName           string
	NoteNumber           string
	StartDate            time.Time
	AgreedDays           int
	TotalValue           decimal.Decimal
	AmountPaidAtDelivery decimal.Decimal
	Items                []LineItem
}

// NewRental validates input and builds an active rental with derived end dates
// and receivable, plus reserve intents for every line.
func NewRental(in NewRentalInput) (Outcome, error) {
	if in.ClientID <= 0 {
		return Outcome{}, invalid("client_id", "is required")
	}
	if in.StartDate.IsZero() {
		return Outcome{}, invalid("start_date", "is required")
	}
	if in.AgreedDays < 1 {
		return Outcome{}, invalid("agreed_days", "must be at least 1")
	}
	if in.TotalValue.IsNegative() {
		return Outcome{}, invalid("total_value", "must not be negative")
	}
	if in.AmountPaidAtDelivery.IsNegative() {
		return Outcome{}, invalid("amount_paid_at_delivery", "must not be negative")
	}
	if len(in.Items) == 0 {
		return Outcome{}, invalid("items", "at least one item is required")
	}
	for i, item := range in.Items {
		if item.ModelID <= 0 {
			return Outcome{}, invalid("items", "line %d: model is required", i+1)
		}
		if item.Quantity < 1 {
			return Outcome{}, invalid("items", "line %d: quantity must be at least 1", i+1)
		}
	}

	start := DateOnly(in.StartDate)
	end, _ := ComputeEndDate(start, in.AgreedDays)
	r := Rental{
		ClientID:              in.ClientID,
		ClientName:            in.ClientName,
		NoteNumber:            strings.TrimSpace(in.NoteNumber),
		StartDate:             start,
		AgreedDays:            in.AgreedDays,
		OriginalEndDate:       end,
		CurrentEndDate:        end,
		TotalValue:            in.TotalValue,
		AmountPaidAtDelivery:  in.AmountPaidAtDelivery,
		AmountReceivableFinal: in.TotalValue.Sub(in.AmountPaidAtDelivery),
		Status:                StatusActive,
		Items:                 append([]LineItem(nil), in.Items...),
	}
	return Outcome{Rental: r, Intents: intentsFor(IntentReserve, r.Items)}, nil
}
