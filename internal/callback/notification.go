package callback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/lipa/internal/mpesa"
)

// Result codes the processor acts on. Anything else leaves the transaction untouched.
const (
	ResultSuccess   = 0
	ResultFailed    = 1
	ResultCancelled = 1032
)

// Metadata item names sent with a successful result.
const (
	ItemReceipt         = "MpesaReceiptNumber"
	ItemAmount          = "Amount"
	ItemTransactionDate = "TransactionDate"
	ItemPhoneNumber     = "PhoneNumber"
	ItemBalance         = "Balance"
)

// Notification is the stkCallback object of a provider result delivery.
type Notification struct {
	MerchantRequestID string    `json:"MerchantRequestID"`
	CheckoutRequestID string    `json:"CheckoutRequestID"`
	ResultCode        int       `json:"-"`
	ResultDesc        string    `json:"ResultDesc"`
	CallbackMetadata  *itemList `json:"CallbackMetadata,omitempty"`
}

type itemList struct {
	Item []Item `json:"Item"`
}

// Item values arrive as JSON numbers or strings; some items carry no value at all.
type Item struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

type envelope struct {
	Body struct {
		STKCallback *rawNotification `json:"stkCallback"`
	} `json:"Body"`
}

type rawNotification struct {
	Notification
	ResultCode *json.Number `json:"ResultCode"`
}

// Decode parses a provider delivery body.
func Decode(body []byte) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return Notification{}, &MalformedError{Reason: fmt.Sprintf("decoding body: %v", err)}
	}

	raw := env.Body.STKCallback
	if raw == nil {
		return Notification{}, &MalformedError{Reason: "missing Body.stkCallback"}
	}

	n := raw.Notification

	if n.CheckoutRequestID == "" {
		return n, &MalformedError{Reason: "missing CheckoutRequestID"}
	}

	if raw.ResultCode == nil {
		return n, &MalformedError{CheckoutRequestID: n.CheckoutRequestID, Reason: "missing ResultCode"}
	}

	code, err := strconv.Atoi(raw.ResultCode.String())
	if err != nil {
		return n, &MalformedError{CheckoutRequestID: n.CheckoutRequestID, Reason: fmt.Sprintf("invalid ResultCode %q", raw.ResultCode.String())}
	}

	n.ResultCode = code

	return n, nil
}

// Metadata indexes the callback items by name. Later duplicates win.
type Metadata map[string]json.RawMessage

func (n Notification) Metadata() Metadata {
	m := Metadata{}
	if n.CallbackMetadata == nil {
		return m
	}

	for _, it := range n.CallbackMetadata.Item {
		if len(it.Value) == 0 || string(it.Value) == "null" {
			continue
		}

		m[it.Name] = it.Value
	}

	return m
}

// String returns the item as text whether it was sent as a JSON string or number.
func (m Metadata) String(name string) (string, bool) {
	raw, ok := m[name]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}

	s = strings.TrimSpace(string(raw))

	return s, s != ""
}

func (m Metadata) Decimal(name string) (decimal.Decimal, bool) {
	s, ok := m.String(name)
	if !ok {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}

	return d, true
}

// Time parses a provider timestamp such as 20191219102115.
func (m Metadata) Time(name string) (time.Time, bool) {
	s, ok := m.String(name)
	if !ok {
		return time.Time{}, false
	}

	t, err := mpesa.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}
