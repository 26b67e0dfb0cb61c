package mpesa

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

/* ===================== Outbound ===================== */

type PushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string
}

type PushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type providerError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

/* ===================== Callback (inbound) ===================== */

// CallbackEnvelope is the body Safaricom posts to the CallBackURL.
type CallbackEnvelope struct {
	Body struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string        `json:"Name"`
	Value MetadataValue `json:"Value"`
}

// MetadataValue keeps the textual form of a metadata value; the provider
// sends both strings and numbers (phone and amount arrive as JSON numbers).
type MetadataValue struct {
	Raw   string
	Valid bool
}

func (v *MetadataValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = MetadataValue{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = MetadataValue{Raw: s, Valid: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = MetadataValue{Raw: n.String(), Valid: true}
	return nil
}

func (v MetadataValue) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Raw)
}

// PaymentDetails is the typed view of CallbackMetadata. Missing items stay nil.
type PaymentDetails struct {
	ReceiptNumber   *string
	PhoneNumber     *string
	Amount          *decimal.Decimal
	TransactionDate *string
}

func (c *StkCallback) Succeeded() bool { return c.ResultCode == 0 }

func (c *StkCallback) Details() PaymentDetails {
	var out PaymentDetails
	if c.CallbackMetadata == nil {
		return out
	}
	for _, it := range c.CallbackMetadata.Item {
		if !it.Value.Valid || strings.TrimSpace(it.Value.Raw) == "" {
			continue
		}
		raw := strings.TrimSpace(it.Value.Raw)
		switch it.Name {
		case "MpesaReceiptNumber":
			out.ReceiptNumber = &raw
		case "PhoneNumber":
			out.PhoneNumber = &raw
		case "TransactionDate":
			out.TransactionDate = &raw
		case "Amount":
			if d, err := decimal.NewFromString(raw); err == nil {
				out.Amount = &d
			}
		}
	}
	return out
}
