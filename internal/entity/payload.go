package entity

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type PayloadKind string

const (
	PayloadTransaction PayloadKind = "TRANSACTION"
	PayloadBalance     PayloadKind = "BALANCE"
	PayloadCardsList   PayloadKind = "CARDS_LIST"
	PayloadMenu        PayloadKind = "MENU"
	PayloadInvoices    PayloadKind = "INVOICES"
	PayloadReport      PayloadKind = "REPORT"
	PayloadReceipt     PayloadKind = "RECEIPT"
	PayloadAudioRef    PayloadKind = "AUDIO_REF"
)

// RichPayload is the closed set of typed message bodies the renderer knows how
// to draw. Tags the core does not know are kept as UnknownPayload.
type RichPayload interface {
	Kind() PayloadKind
}

type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

type TransactionPayload struct {
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
}

type BalancePayload struct {
	Accounts []AccountBalance `json:"accounts"`
	Total    decimal.Decimal  `json:"total"`
	SyncedAt time.Time        `json:"synced_at"`
}

type CardsListPayload struct {
	Cards []CardUsage `json:"cards"`
}

type MenuOption struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Command string `json:"command"`
}

type MenuPayload struct {
	Title   string       `json:"title"`
	Options []MenuOption `json:"options"`
}

type Invoice struct {
	ID      string          `json:"id"`
	CardID  string          `json:"card_id"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
	Status  string          `json:"status"`
}

type InvoicesPayload struct {
	Invoices []Invoice `json:"invoices"`
}

type ReportPayload struct {
	Period     string                     `json:"period"`
	Income     decimal.Decimal            `json:"income"`
	Expense    decimal.Decimal            `json:"expense"`
	ByCategory map[string]decimal.Decimal `json:"by_category,omitempty"`
}

type ReceiptPayload struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
}

type AudioRefPayload struct {
	URL        string `json:"url"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type UnknownPayload struct {
	Tag string              `json:"-"`
	Raw jsoniter.RawMessage `json:"-"`
}

func (TransactionPayload) Kind() PayloadKind { return PayloadTransaction }
func (BalancePayload) Kind() PayloadKind     { return PayloadBalance }
func (CardsListPayload) Kind() PayloadKind   { return PayloadCardsList }
func (MenuPayload) Kind() PayloadKind        { return PayloadMenu }
func (InvoicesPayload) Kind() PayloadKind    { return PayloadInvoices }
func (ReportPayload) Kind() PayloadKind      { return PayloadReport }
func (ReceiptPayload) Kind() PayloadKind     { return PayloadReceipt }
func (AudioRefPayload) Kind() PayloadKind    { return PayloadAudioRef }
func (p UnknownPayload) Kind() PayloadKind   { return PayloadKind(p.Tag) }

type payloadEnvelope struct {
	Type PayloadKind         `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

func EncodePayload(p RichPayload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}

	if u, ok := p.(UnknownPayload); ok {
		return json.Marshal(payloadEnvelope{Type: PayloadKind(u.Tag), Data: u.Raw})
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(payloadEnvelope{Type: p.Kind(), Data: data})
}

// DecodePayload turns a {"type": ..., "data": ...} envelope into its typed variant.
func DecodePayload(raw []byte) (RichPayload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	var (
		p   RichPayload
		err error
	)
	switch env.Type {
	case PayloadTransaction:
		var v TransactionPayload
		err = decodeData(env.Data, &v)
		p = v
	case PayloadBalance:
		var v BalancePayload
		err = decodeData(env.Data, &v)
		p = v
	case PayloadCardsList:
		var v CardsListPayload
		err = decodeData(env.Data, &v)
		p = v
	case PayloadMenu:
		var v MenuPayload
		err = decodeData(env.Data, &v)
		p = v
	case PayloadInvoices:
		var v InvoicesPayload
		err = decodeData(env.Data, &v)
		p = v
	case PayloadReport:
		var v ReportPayload
		err = decodeData(env.Data, &v)
		p = v
	case PayloadReceipt:
		var v ReceiptPayload
		err = decodeData(env.Data, &v)
		p = v
	case PayloadAudioRef:
		var v AudioRefPayload
		err = decodeData(env.Data, &v)
		p = v
	default:
		p = UnknownPayload{Tag: string(env.Type), Raw: env.Data}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}

	return p, nil
}

func decodeData(data jsoniter.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

type messageBodyJSON struct {
	Text    string              `json:"text,omitempty"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

func (b MessageBody) MarshalJSON() ([]byte, error) {
	out := messageBodyJSON{Text: b.Text}
	if b.Payload != nil {
		raw, err := EncodePayload(b.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = raw
	}
	return json.Marshal(out)
}

func (b *MessageBody) UnmarshalJSON(data []byte) error {
	var in messageBodyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	p, err := DecodePayload(in.Payload)
	if err != nil {
		return err
	}

	b.Text = in.Text
	b.Payload = p
	return nil
}
