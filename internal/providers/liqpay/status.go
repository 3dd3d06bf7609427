package liqpay

// Status is a transaction status reported by LiqPay.
type Status string

// All statuses LiqPay documents for payment and callback responses.
const (
	StatusError        Status = "error"
	StatusFailure      Status = "failure"
	StatusReversed     Status = "reversed"
	StatusSubscribed   Status = "subscribed"
	StatusSuccess      Status = "success"
	StatusUnsubscribed Status = "unsubscribed"
	StatusTryAgain     Status = "try_again"

	Status3DSVerify       Status = "3ds_verify"
	StatusCaptchaVerify   Status = "captcha_verify"
	StatusCVVVerify       Status = "cvv_verify"
	StatusIVRVerify       Status = "ivr_verify"
	StatusOTPVerify       Status = "otp_verify"
	StatusPasswordVerify  Status = "password_verify"
	StatusPhoneVerify     Status = "phone_verify"
	StatusPinVerify       Status = "pin_verify"
	StatusReceiverVerify  Status = "receiver_verify"
	StatusSenderVerify    Status = "sender_verify"
	StatusSenderAppVerify Status = "senderapp_verify"
	StatusWaitQR          Status = "wait_qr"
	StatusP24Verify       Status = "p24_verify"
	StatusMPVerify        Status = "mp_verify"

	StatusCashWait         Status = "cash_wait"
	StatusHoldWait         Status = "hold_wait"
	StatusInvoiceWait      Status = "invoice_wait"
	StatusPrepared         Status = "prepared"
	StatusProcessing       Status = "processing"
	StatusWaitAccept       Status = "wait_accept"
	StatusWaitCard         Status = "wait_card"
	StatusWaitCompensation Status = "wait_compensation"
	StatusWaitLC           Status = "wait_lc"
	StatusWaitReserve      Status = "wait_reserve"
	StatusWaitSecure       Status = "wait_secure"
)

// Class groups statuses by the decision they drive.
type Class int

const (
	// ClassPending covers verification and wait states, and any status the
	// gateway does not recognize. Unknown statuses must never authorize.
	ClassPending Class = iota
	// ClassSuccess covers statuses that confirm the charge.
	ClassSuccess
	// ClassFailure covers terminal failures.
	ClassFailure
	// ClassCanceled covers reversal and unsubscription.
	ClassCanceled
)

// Class classifies the status. Every documented status is listed; anything
// else falls through to pending.
func (s Status) Class() Class {
	switch s {
	case StatusSuccess, StatusSubscribed:
		return ClassSuccess
	case StatusError, StatusFailure, StatusTryAgain:
		return ClassFailure
	case StatusReversed, StatusUnsubscribed:
		return ClassCanceled
	case Status3DSVerify, StatusCaptchaVerify, StatusCVVVerify, StatusIVRVerify,
		StatusOTPVerify, StatusPasswordVerify, StatusPhoneVerify, StatusPinVerify,
		StatusReceiverVerify, StatusSenderVerify, StatusSenderAppVerify,
		StatusWaitQR, StatusP24Verify, StatusMPVerify,
		StatusCashWait, StatusHoldWait, StatusInvoiceWait, StatusPrepared,
		StatusProcessing, StatusWaitAccept, StatusWaitCard,
		StatusWaitCompensation, StatusWaitLC, StatusWaitReserve, StatusWaitSecure:
		return ClassPending
	default:
		return ClassPending
	}
}

// IsSuccess reports whether the status confirms a completed charge.
func (s Status) IsSuccess() bool {
	return s.Class() == ClassSuccess
}

var statusDescriptions = map[Status]string{
	StatusError:            "Payment failed: invalid payment data",
	StatusFailure:          "Payment failed",
	StatusReversed:         "Payment refunded",
	StatusSubscribed:       "Subscription activated",
	StatusUnsubscribed:     "Subscription deactivated",
	StatusSuccess:          "Payment successful",
	Status3DSVerify:        "3DS verification required to complete the payment",
	StatusCaptchaVerify:    "Awaiting captcha confirmation",
	StatusCVVVerify:        "Sender card CVV required to complete the payment",
	StatusIVRVerify:        "Awaiting IVR call confirmation",
	StatusOTPVerify:        "OTP confirmation required; password sent to the client's phone",
	StatusPasswordVerify:   "Awaiting Privat24 application password confirmation",
	StatusPhoneVerify:      "Awaiting client phone entry",
	StatusPinVerify:        "Awaiting pin-code confirmation",
	StatusReceiverVerify:   "Receiver details required to complete the payment",
	StatusSenderVerify:     "Sender details required to complete the payment",
	StatusSenderAppVerify:  "Awaiting confirmation in the Privat24 application",
	StatusWaitQR:           "Awaiting QR code scan by the client",
	StatusP24Verify:        "Awaiting payment completion in Privat24",
	StatusMPVerify:         "Awaiting payment completion in the MasterPass wallet",
	StatusCashWait:         "Awaiting cash payment at a self-service terminal",
	StatusHoldWait:         "Amount successfully blocked on the sender's account",
	StatusInvoiceWait:      "Invoice created, awaiting payment",
	StatusPrepared:         "Payment created, awaiting completion by the sender",
	StatusProcessing:       "Payment is being processed",
	StatusWaitAccept:       "Funds debited but the shop has not passed verification yet",
	StatusWaitCard:         "Recipient has no refund method configured",
	StatusWaitCompensation: "Payment successful, will be credited in the daily settlement",
	StatusWaitLC:           "Letter of credit: funds debited, awaiting delivery confirmation",
	StatusWaitReserve:      "Funds reserved for a refund of an earlier request",
	StatusWaitSecure:       "Payment under review",
	StatusTryAgain:         "Payment unsuccessful; the client may retry",
}

// Describe returns a human-readable description of the status.
func (s Status) Describe() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return "Unknown status"
}
