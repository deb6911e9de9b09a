package webhook

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	checkoutdomain "github.com/smallbiznis/recova/internal/checkout/domain"
	"gorm.io/datatypes"
)

// checkoutPayload mirrors the cart platform's checkout webhook shape.
// Amounts arrive as strings; phones can live in four different places.
type checkoutPayload struct {
	ID          json.Number     `json:"id"`
	Token       string          `json:"token"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	TotalPrice  stringOrNumber  `json:"total_price"`
	Currency    string          `json:"currency"`
	LineItems   json.RawMessage `json:"line_items"`
	CompletedAt *time.Time      `json:"completed_at"`
	UpdatedAt   *time.Time      `json:"updated_at"`
	CreatedAt   *time.Time      `json:"created_at"`
	OrderID     json.Number     `json:"order_id"`

	Customer struct {
		Phone string `json:"phone"`
	} `json:"customer"`
	BillingAddress struct {
		Phone string `json:"phone"`
	} `json:"billing_address"`
	ShippingAddress struct {
		Phone string `json:"phone"`
	} `json:"shipping_address"`
}

type stringOrNumber float64

func (v *stringOrNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*v = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*v = stringOrNumber(f)
	return nil
}

// ParseCheckoutEvent normalizes a raw webhook body into a checkout
// event. The checkout identity prefers token over the numeric id.
func ParseCheckoutEvent(shop string, body []byte) (checkoutdomain.CheckoutEvent, error) {
	var payload checkoutPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return checkoutdomain.CheckoutEvent{}, err
	}

	checkoutID := strings.TrimSpace(payload.Token)
	if checkoutID == "" {
		checkoutID = payload.ID.String()
	}

	event := checkoutdomain.CheckoutEvent{
		Shop:       strings.TrimSpace(shop),
		CheckoutID: checkoutID,
		Email:      strings.TrimSpace(payload.Email),
		Phone:      NormalizePhone(firstNonEmpty(payload.Phone, payload.Customer.Phone, payload.BillingAddress.Phone, payload.ShippingAddress.Phone)),
		Value:      float64(payload.TotalPrice),
		Currency:   strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Raw:        datatypes.JSON(body),
	}
	if len(payload.LineItems) > 0 {
		event.ItemsJSON = datatypes.JSON(payload.LineItems)
	}
	if payload.CompletedAt != nil {
		event.Completed = true
		event.OrderID = payload.OrderID.String()
	}
	if payload.UpdatedAt != nil {
		event.OccurredAt = *payload.UpdatedAt
	} else if payload.CreatedAt != nil {
		event.OccurredAt = *payload.CreatedAt
	}
	return event, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
