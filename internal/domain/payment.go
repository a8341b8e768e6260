package domain

// PaymentVerification is the Payment Verifier's answer for one transaction.
type PaymentVerification struct {
	Valid       bool   `json:"valid"`
	Amount      Money  `json:"amount"`
	BlockNumber uint64 `json:"block_number"`
	Error       string `json:"error,omitempty"`
}
