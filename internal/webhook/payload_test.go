package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCheckoutEvent_ActivityPayload(t *testing.T) {
	body := []byte(`{
		"id": 123456789,
		"token": "tok-abc",
		"email": "buyer@example.com",
		"phone": "tel:+1 (555) 010-0101",
		"total_price": "89.90",
		"currency": "usd",
		"line_items": [{"title": "Socks", "quantity": 2}],
		"updated_at": "2025-03-01T10:15:00Z"
	}`)

	event, err := ParseCheckoutEvent("shop.myshopify.com", body)
	require.NoError(t, err)
	require.Equal(t, "shop.myshopify.com", event.Shop)
	require.Equal(t, "tok-abc", event.CheckoutID)
	require.Equal(t, "buyer@example.com", event.Email)
	require.Equal(t, "+15550100101", event.Phone)
	require.Equal(t, 89.90, event.Value)
	require.Equal(t, "USD", event.Currency)
	require.False(t, event.Completed)
	require.Equal(t, time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC), event.OccurredAt.UTC())
	require.NotEmpty(t, event.ItemsJSON)
	require.NotEmpty(t, event.Raw)
}

func TestParseCheckoutEvent_FallsBackToNumericID(t *testing.T) {
	event, err := ParseCheckoutEvent("shop.myshopify.com", []byte(`{"id": 987, "total_price": 12.5}`))
	require.NoError(t, err)
	require.Equal(t, "987", event.CheckoutID)
	require.Equal(t, 12.5, event.Value)
}

func TestParseCheckoutEvent_PhonePrecedence(t *testing.T) {
	body := []byte(`{
		"token": "tok-1",
		"customer": {"phone": "+15550000002"},
		"billing_address": {"phone": "+15550000003"},
		"shipping_address": {"phone": "+15550000004"}
	}`)
	event, err := ParseCheckoutEvent("shop.myshopify.com", body)
	require.NoError(t, err)
	require.Equal(t, "+15550000002", event.Phone)

	body = []byte(`{
		"token": "tok-1",
		"shipping_address": {"phone": "+15550000004"}
	}`)
	event, err = ParseCheckoutEvent("shop.myshopify.com", body)
	require.NoError(t, err)
	require.Equal(t, "+15550000004", event.Phone)
}

func TestParseCheckoutEvent_CompletionCarriesOrder(t *testing.T) {
	body := []byte(`{
		"token": "tok-2",
		"total_price": "120.00",
		"completed_at": "2025-03-01T11:00:00Z",
		"order_id": 555001,
		"created_at": "2025-03-01T09:00:00Z"
	}`)
	event, err := ParseCheckoutEvent("shop.myshopify.com", body)
	require.NoError(t, err)
	require.True(t, event.Completed)
	require.Equal(t, "555001", event.OrderID)
	// No updated_at in the payload, so created_at anchors the event.
	require.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), event.OccurredAt.UTC())
}

func TestParseCheckoutEvent_RejectsMalformedJSON(t *testing.T) {
	_, err := ParseCheckoutEvent("shop.myshopify.com", []byte(`{"token":`))
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	secret := "topsecret"
	body := []byte(`{"token":"tok-1"}`)

	require.True(t, VerifySignature(secret, body, Sign(secret, body)))
	require.False(t, VerifySignature(secret, body, Sign("wrong", body)))
	require.False(t, VerifySignature(secret, body, ""))
	require.False(t, VerifySignature(secret, []byte(`tampered`), Sign(secret, body)))

	// Empty secret means verification is off.
	require.True(t, VerifySignature("", body, "anything"))
}
