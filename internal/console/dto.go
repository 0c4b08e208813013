package console

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/locadora/console/internal/rental"
)

type lineRequest struct {
	ModelID   int64  `json:"model_id" validate:"required,gt=0"`
	ModelName string `json:"model_name" validate:"max=120"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
	Unit      string `json:"unit" validate:"max=16"`
}

type createRequest struct {
	ClientID             int64           `json:"client_id" validate:"required,gt=0"`
	ClientName           string          `json:"client_name" validate:"max=200"`
	NoteNumber           string          `json:"note_number" validate:"max=40"`
	StartDate            string          `json:"start_date" validate:"required"`
	AgreedDays           int             `json:"agreed_days" validate:"required,gte=1"`
	TotalValue           decimal.Decimal `json:"total_value"`
	AmountPaidAtDelivery decimal.Decimal `json:"amount_paid_at_delivery"`
	Items                []lineRequest   `json:"items" validate:"required,min=1,dive"`
}

func (req createRequest) input(start time.Time, key string) CreateInput {
	items := make([]rental.LineItem, 0, len(req.Items))
	for _, l := range req.Items {
		items = append(items, rental.LineItem{ModelID: l.ModelID, ModelName: l.ModelName, Quantity: l.Quantity, Unit: l.Unit})
	}
	return CreateInput{
		NewRentalInput: rental.NewRentalInput{
			ClientID:             req.ClientID,
			ClientName:           req.ClientName,
			NoteNumber:           req.NoteNumber,
			StartDate:            start,
			AgreedDays:           req.AgreedDays,
			TotalValue:           req.TotalValue,
			AmountPaidAtDelivery: req.AmountPaidAtDelivery,
			Items:                items,
		},
		IdempotencyKey: key,
	}
}

type returnRequest struct {
	ReturnDate string `json:"return_date"`
}

type extendRequest struct {
	Days          int             `json:"days" validate:"required,gte=1,lte=3650"`
	NewTotalValue decimal.Decimal `json:"new_total_value"`
	Abatement     decimal.Decimal `json:"abatement"`
	Reason        string          `json:"reason" validate:"max=500"`
}

type completeEarlyRequest struct {
	NewFinalValue *decimal.Decimal `json:"new_final_value"`
	Abatement     decimal.Decimal  `json:"abatement"`
	Reason        string           `json:"reason" validate:"max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type rentalView struct {
	rental.Rental
	Bucket      rental.Bucket `json:"bucket"`
	DaysOverdue int           `json:"days_overdue"`
	AmountOwed  string        `json:"amount_owed"`
	Display     displayFields `json:"display"`
}

type displayFields struct {
	StartDate      string `json:"start_date"`
	CurrentEndDate string `json:"current_end_date"`
	ReturnDate     string `json:"return_date"`
	AmountOwed     string `json:"amount_owed"`
	TotalValue     string `json:"total_value"`
}

func viewOf(r rental.Rental, now time.Time) rentalView {
	owed := r.AmountOwed()
	total := r.TotalValue
	if r.RevisedTotalValue != nil {
		total = *r.RevisedTotalValue
	}
	return rentalView{
		Rental:      r,
		Bucket:      rental.Classify(r, now),
		DaysOverdue: rental.DaysOverdue(r, now),
		AmountOwed:  owed.StringFixed(2),
		Display: displayFields{
			StartDate:      rental.FormatDate(&r.StartDate, "-"),
			CurrentEndDate: rental.FormatDate(&r.CurrentEndDate, "-"),
			ReturnDate:     rental.FormatDate(r.ReturnDate, "-"),
			AmountOwed:     rental.FormatCurrency(&owed),
			TotalValue:     rental.FormatCurrency(&total),
		},
	}
}

func viewsOf(rentals []rental.Rental, now time.Time) []rentalView {
	out := make([]rentalView, 0, len(rentals))
	for _, r := range rentals {
		out = append(out, viewOf(r, now))
	}
	return out
}
