package mpesa

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "0712345678", want: "254712345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "254712345678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: "0712 345 678", want: "254712345678"},
		{in: "(0712)-345-678", want: "254712345678"},
		{in: "", err: true},
		{in: "07123", err: true},
		{in: "07123456789012", err: true},
		{in: "07abc45678", err: true},
	}

	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidPhone) {
				t.Errorf("NormalizePhone(%q) err = %v, want ErrInvalidPhone", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizePhone(%q) unexpected err %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCallbackDetails(t *testing.T) {
	raw := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"ws_1","ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":100.5},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
		{"Name":"Balance"},{"Name":"TransactionDate","Value":20191219102115},{"Name":"PhoneNumber","Value":254708374149}]}}}}`)

	var env CallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cb := env.Body.StkCallback
	if cb == nil || !cb.Succeeded() {
		t.Fatalf("callback not parsed: %+v", cb)
	}
	d := cb.Details()
	if d.ReceiptNumber == nil || *d.ReceiptNumber != "NLJ7RT61SV" {
		t.Errorf("receipt = %v", d.ReceiptNumber)
	}
	if d.PhoneNumber == nil || *d.PhoneNumber != "254708374149" {
		t.Errorf("phone = %v", d.PhoneNumber)
	}
	if d.TransactionDate == nil || *d.TransactionDate != "20191219102115" {
		t.Errorf("date = %v", d.TransactionDate)
	}
	if d.Amount == nil || d.Amount.String() != "100.5" {
		t.Errorf("amount = %v", d.Amount)
	}
}
