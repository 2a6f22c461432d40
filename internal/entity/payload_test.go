package entity

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_EnvelopeRoundTrip(t *testing.T) {
	in := TransactionPayload{
		Type:        TransactionExpense,
		Amount:      decimal.RequireFromString("150.00"),
		Description: "Netflix",
	}

	raw, err := EncodePayload(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"TRANSACTION"`)

	out, err := DecodePayload(raw)
	require.NoError(t, err)

	got, ok := out.(TransactionPayload)
	require.True(t, ok, "decoded %T", out)
	assert.Equal(t, in.Type, got.Type)
	assert.True(t, in.Amount.Equal(got.Amount))
	assert.Equal(t, in.Description, got.Description)
}

func TestPayload_UnknownTagIsKept(t *testing.T) {
	raw := []byte(`{"type":"STOCK_QUOTE","data":{"ticker":"PETR4"}}`)

	p, err := DecodePayload(raw)
	require.NoError(t, err)

	u, ok := p.(UnknownPayload)
	require.True(t, ok)
	assert.Equal(t, PayloadKind("STOCK_QUOTE"), u.Kind())
	assert.JSONEq(t, `{"ticker":"PETR4"}`, string(u.Raw))

	again, err := EncodePayload(u)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(again))
}

func TestPayload_Empty(t *testing.T) {
	raw, err := EncodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	p, err := DecodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = DecodePayload([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPayload_BadEnvelope(t *testing.T) {
	_, err := DecodePayload([]byte(`{"type":`))
	assert.Error(t, err)

	_, err = DecodePayload([]byte(`{"type":"TRANSACTION","data":{"amount":[1]}}`))
	assert.Error(t, err)
}

func TestMessageBody_JSON(t *testing.T) {
	body := MessageBody{
		Text: "Seu menu",
		Payload: MenuPayload{
			Title:   "Posso ajudar com",
			Options: []MenuOption{{ID: "balance", Label: "Ver saldo", Command: "saldo"}},
		},
	}

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	var out MessageBody
	require.NoError(t, json.Unmarshal(raw, &out))

	if diff := cmp.Diff(body, out); diff != "" {
		t.Errorf("message body mismatch (-want +got):\n%s", diff)
	}
}
