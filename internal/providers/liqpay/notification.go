package liqpay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload indicates a notification payload that could not be
// decoded or parsed. Callers map it to a client error response.
var ErrMalformedPayload = errors.New("malformed notification payload")

// TransactionStatus is the transaction snapshot LiqPay reports in status
// responses and callback notifications. It is immutable once decoded; a
// later poll supersedes it. Amount and Currency are pointers/optional
// because LiqPay omits them on several status variants.
type TransactionStatus struct {
	Action         string   `json:"action,omitempty"`
	PaymentID      int64    `json:"payment_id,omitempty"`
	Status         Status   `json:"status"`
	Version        int      `json:"version,omitempty"`
	Amount         *float64 `json:"amount,omitempty"`
	Currency       string   `json:"currency,omitempty"`
	OrderID        string   `json:"order_id,omitempty"`
	LiqPayOrderID  string   `json:"liqpay_order_id,omitempty"`
	TransactionID  int64    `json:"transaction_id,omitempty"`
	PayType        string   `json:"paytype,omitempty"`
	Description    string   `json:"description,omitempty"`
	SenderPhone    string   `json:"sender_phone,omitempty"`
	SenderCardMask string   `json:"sender_card_mask2,omitempty"`
	SenderCardBank string   `json:"sender_card_bank,omitempty"`
	CardToken      string   `json:"card_token,omitempty"`
	RefundAmount   *float64 `json:"refund_amount,omitempty"`
	VerifyCode     string   `json:"verifycode,omitempty"`
	RedirectTo     string   `json:"redirect_to,omitempty"`
	ErrCode        string   `json:"err_code,omitempty"`
	ErrDescription string   `json:"err_description,omitempty"`
}

// DecodeNotification decodes the base64-encoded data field of a webhook
// notification into a TransactionStatus. Any decoding or parsing failure is
// reported as ErrMalformedPayload.
func DecodeNotification(data string) (*TransactionStatus, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var ts TransactionStatus
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ts.Status == "" {
		return nil, fmt.Errorf("%w: missing status", ErrMalformedPayload)
	}

	return &ts, nil
}

// EncodeNotification is the inverse of DecodeNotification, used when
// constructing requests and in tests.
func EncodeNotification(ts *TransactionStatus) (string, error) {
	raw, err := json.Marshal(ts)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
