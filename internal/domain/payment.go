package domain

import "time"

// PaymentSession is the transient payment-in-progress record attached 1:1 to
// an order. Exactly one session per order may be active (initiated or
// processing) at any time.
type PaymentSession struct {
	ID             string        `json:"id"`
	OrderID        string        `json:"order_id"`
	BranchID       string        `json:"branch_id"`
	State          PaymentState  `json:"state"`
	Method         PaymentMethod `json:"method,omitempty"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	AmountReceived float64       `json:"amount_received,omitempty"`
	Change         float64       `json:"change,omitempty"`
	InitiatedBy    string        `json:"initiated_by"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (s PaymentState) Active() bool {
	return s == SessionInitiated || s == SessionProcessing
}

// PaymentInput is the method-specific payload supplied to process.
type PaymentInput struct {
	Method         PaymentMethod `json:"method"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	AmountReceived float64       `json:"amount_received"`
}

// ValidatePayment checks the payload against the amount due and returns the
// change to hand back (cash only, zero otherwise).
func ValidatePayment(in PaymentInput, amountDue float64) (float64, error) {
	if !ValidPaymentMethod(in.Method) {
		return 0, Invalidf("method", "must be one of: cash, qr, upi, credit_card")
	}
	switch in.Method {
	case MethodCash:
		if in.AmountReceived < amountDue {
			return 0, Invalidf("amount_received", "must cover the amount due %.2f", amountDue)
		}
		return in.AmountReceived - amountDue, nil
	default:
		if in.TransactionID == "" {
			return 0, Invalidf("transaction_id", "required for %s payments", in.Method)
		}
		if in.AmountReceived != amountDue {
			return 0, Invalidf("amount_received", "must equal the amount due %.2f exactly", amountDue)
		}
		return 0, nil
	}
}
