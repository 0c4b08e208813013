package backend

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/locadora/console/internal/inventory"
	"github.com/locadora/console/internal/rental"
)

const wireDateLayout = "2006-01-02"

// ============================================================================
// WIRE TYPES
// ============================================================================

type clientDTO struct {
	ID       int64  `json:"id"`
	Nome     string `json:"nome"`
	Document string `json:"cpf_cnpj,omitempty"`
	Telefone string `json:"telefone,omitempty"`
	Email    string `json:"email,omitempty"`
}

type lineItemDTO struct {
	ModeloID   int64  `json:"modelo_id"`
	ModeloNome string `json:"modelo_nome,omitempty"`
	Quantidade int    `json:"quantidade"`
	Unidade    string `json:"unidade,omitempty"`
}

type rentalDTO struct {
	ID                 int64               `json:"id"`
	ClienteID          int64               `json:"cliente_id"`
	ClienteNome        string              `json:"cliente_nome,omitempty"`
	Cliente            *clientDTO          `json:"cliente,omitempty"`
	NumeroNota         string              `json:"numero_nota"`
	DataInicio         string              `json:"data_inicio"`
	DiasCombinados     int                 `json:"dias_combinados"`
	DataFimOriginal    string              `json:"data_fim_original,omitempty"`
	DataFimAtual       string              `json:"data_fim_atual,omitempty"`
	DataDevolucao      *string             `json:"data_devolucao,omitempty"`
	ValorTotal         decimal.Decimal     `json:"valor_total"`
	ValorPagoEntrega   decimal.Decimal     `json:"valor_pago_entrega"`
	ValorReceberFinal  decimal.NullDecimal `json:"valor_receber_final"`
	ValorTotalRevisado decimal.NullDecimal `json:"valor_total_revisado"`
	Abatimento         decimal.Decimal     `json:"abatimento"`
	Status             string              `json:"status"`
	MotivoAjuste       string              `json:"motivo_ajuste,omitempty"`
	DataProrrogacao    *string             `json:"data_prorrogacao,omitempty"`
	Itens              []lineItemDTO       `json:"itens"`
}

type createRentalRequest struct {
	ClienteID         int64           `json:"cliente_id"`
	NumeroNota        string          `json:"numero_nota,omitempty"`
	DataInicio        string          `json:"data_inicio"`
	DiasCombinados    int             `json:"dias_combinados"`
	DataFimOriginal   string          `json:"data_fim_original"`
	ValorTotal        decimal.Decimal `json:"valor_total"`
	ValorPagoEntrega  decimal.Decimal `json:"valor_pago_entrega"`
	ValorReceberFinal decimal.Decimal `json:"valor_receber_final"`
	Status            string          `json:"status"`
	Itens             []lineItemDTO   `json:"itens"`
}

type statusRequest struct {
	Status     string `json:"status"`
	ReturnDate string `json:"data_devolucao,omitempty"`
}

type extendRequest struct {
	Dias           int             `json:"dias"`
	NovoValorTotal decimal.Decimal `json:"novo_valor_total"`
	Abatimento     decimal.Decimal `json:"abatimento"`
	Motivo         string          `json:"motivo,omitempty"`
}

type completeEarlyRequest struct {
	NovaDataFim    string           `json:"nova_data_fim"`
	DataDevolucao  string           `json:"data_devolucao,omitempty"`
	NovoValorFinal *decimal.Decimal `json:"novo_valor_final,omitempty"`
	Abatimento     decimal.Decimal  `json:"abatimento"`
	Motivo         string           `json:"motivo,omitempty"`
}

type stockDTO struct {
	ID                   int64  `json:"id"`
	Nome                 string `json:"nome"`
	Categoria            string `json:"categoria,omitempty"`
	QuantidadeTotal      int    `json:"quantidade_total"`
	QuantidadeDisponivel int    `json:"quantidade_disponivel"`
}

type stockAdjustRequest struct {
	Quantity int `json:"quantidade"`
}

// ============================================================================
// STATUS
// ============================================================================

var wireStatuses = map[rental.Status]string{
	rental.StatusActive:    "ativo",
	rental.StatusCompleted: "concluido",
	rental.StatusCancelled: "cancelado",
}

func statusToWire(s rental.Status) string {
	if wire, ok := wireStatuses[s]; ok {
		return wire
	}
	return string(s)
}

func formatWireDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return rental.DateOnly(t).Format(wireDateLayout)
}

func parseOptionalDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, ok := rental.ParseDate(*raw)
	if !ok {
		return nil
	}
	return &t
}

// ============================================================================
// INBOUND
// ============================================================================

func rentalFromWire(dto rentalDTO) (rental.Rental, error) {
	status, ok := rental.ParseStatus(dto.Status)
	if !ok {
		return rental.Rental{}, fmt.Errorf("rental %d: unknown status %q", dto.ID, dto.Status)
	}

	r := rental.Rental{
		ID:                   dto.ID,
		ClientID:             dto.ClienteID,
		ClientName:           strings.TrimSpace(dto.ClienteNome),
		NoteNumber:           strings.TrimSpace(dto.NumeroNota),
		AgreedDays:           dto.DiasCombinados,
		ReturnDate:           parseOptionalDate(dto.DataDevolucao),
		TotalValue:           dto.ValorTotal,
		AmountPaidAtDelivery: dto.ValorPagoEntrega,
		Abatement:            dto.Abatimento,
		Status:               status,
		AdjustmentReason:     dto.MotivoAjuste,
		ExtensionDate:        parseOptionalDate(dto.DataProrrogacao),
	}
	if dto.Cliente != nil {
		if r.ClientID == 0 {
			r.ClientID = dto.Cliente.ID
		}
		if r.ClientName == "" {
			r.ClientName = strings.TrimSpace(dto.Cliente.Nome)
		}
	}

	if start, ok := rental.ParseDate(dto.DataInicio); ok {
		r.StartDate = start
	}
	if end, ok := rental.ParseDate(dto.DataFimOriginal); ok {
		r.OriginalEndDate = end
	} else if end, ok := rental.ComputeEndDate(r.StartDate, r.AgreedDays); ok {
		r.OriginalEndDate = end
	}
	if end, ok := rental.ParseDate(dto.DataFimAtual); ok {
		r.CurrentEndDate = end
	} else {
		r.CurrentEndDate = r.OriginalEndDate
	}

	if dto.ValorReceberFinal.Valid {
		r.AmountReceivableFinal = dto.ValorReceberFinal.Decimal
	} else {
		r.AmountReceivableFinal = r.TotalValue.Sub(r.AmountPaidAtDelivery)
	}
	if dto.ValorTotalRevisado.Valid {
		revised := dto.ValorTotalRevisado.Decimal
		r.RevisedTotalValue = &revised
	}

	r.Items = make([]rental.LineItem, 0, len(dto.Itens))
	for _, item := range dto.Itens {
		r.Items = append(r.Items, rental.LineItem{
			ModelID:   item.ModeloID,
			ModelName: item.ModeloNome,
			Quantity:  item.Quantidade,
			Unit:      item.Unidade,
		})
	}
	return r, nil
}

func malformed(err error) error {
	return &rental.PersistenceError{Status: http.StatusOK, StatusText: "malformed response", Err: err}
}

func rentalFromWireChecked(dto rentalDTO) (rental.Rental, error) {
	r, err := rentalFromWire(dto)
	if err != nil {
		return rental.Rental{}, malformed(err)
	}
	return r, nil
}

type skippedRecord struct {
	ID  int64
	Err error
}

// rentalsFromWire maps a listing. Records that cannot be mapped are returned
// separately so one bad row does not hide the others.
func rentalsFromWire(dtos []rentalDTO) ([]rental.Rental, []skippedRecord) {
	out := make([]rental.Rental, 0, len(dtos))
	var skipped []skippedRecord
	for _, dto := range dtos {
		r, err := rentalFromWire(dto)
		if err != nil {
			skipped = append(skipped, skippedRecord{ID: dto.ID, Err: err})
			continue
		}
		out = append(out, r)
	}
	return out, skipped
}

func stockFromWire(dto stockDTO) inventory.Item {
	return inventory.Item{
		ID:                dto.ID,
		Name:              dto.Nome,
		Category:          dto.Categoria,
		QuantityTotal:     dto.QuantidadeTotal,
		QuantityAvailable: dto.QuantidadeDisponivel,
	}
}

// ============================================================================
// OUTBOUND
// ============================================================================

func createRequestToWire(r rental.Rental) createRentalRequest {
	items := make([]lineItemDTO, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, lineItemDTO{
			ModeloID:   item.ModelID,
			ModeloNome: item.ModelName,
			Quantidade: item.Quantity,
			Unidade:    item.Unit,
		})
	}
	return createRentalRequest{
		ClienteID:         r.ClientID,
		NumeroNota:        r.NoteNumber,
		DataInicio:        formatWireDate(r.StartDate),
		DiasCombinados:    r.AgreedDays,
		DataFimOriginal:   formatWireDate(r.OriginalEndDate),
		ValorTotal:        r.TotalValue,
		ValorPagoEntrega:  r.AmountPaidAtDelivery,
		ValorReceberFinal: r.AmountReceivableFinal,
		Status:            statusToWire(r.Status),
		Itens:             items,
	}
}

func extendRequestToWire(in ExtendRequest) extendRequest {
	return extendRequest{
		Dias:           in.Days,
		NovoValorTotal: in.NewTotalValue,
		Abatimento:     in.Abatement,
		Motivo:         in.Reason,
	}
}

func completeEarlyRequestToWire(in CompleteEarlyRequest) completeEarlyRequest {
	return completeEarlyRequest{
		NovaDataFim:    formatWireDate(in.NewEndDate),
		DataDevolucao:  formatWireDate(in.ReturnDate),
		NovoValorFinal: in.NewFinalValue,
		Abatimento:     in.Abatement,
		Motivo:         in.Reason,
	}
}
