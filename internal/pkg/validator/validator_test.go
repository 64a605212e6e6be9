package validator

import (
	"testing"

	"github.com/shopspring/decimal"
)

type moneyRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
	Method string          `json:"payment_method" validate:"required,payment_method"`
}

func TestMoneyValidation(t *testing.T) {
	cases := map[string]bool{
		"20":     true,
		"20.5":   true,
		"20.55":  true,
		"20.555": false,
		"0":      false,
		"-5":     false,
	}
	for raw, ok := range cases {
		req := moneyRequest{Amount: decimal.RequireFromString(raw), Method: "telebirr"}
		errs := Validate(&req)
		if ok && errs != nil {
			t.Fatalf("%s: expected valid, got %v", raw, errs)
		}
		if !ok && errs["amount"] == "" {
			t.Fatalf("%s: expected amount error, got %v", raw, errs)
		}
	}
}

func TestPaymentMethodValidation(t *testing.T) {
	errs := Validate(&moneyRequest{Amount: decimal.NewFromInt(20), Method: "paypal"})
	if errs["payment_method"] == "" {
		t.Fatalf("expected payment_method error, got %v", errs)
	}
}
