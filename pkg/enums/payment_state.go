package enums

// PaymentState is the per-attempt dispatcher state.
type PaymentState string

const (
	PaymentStateIdle       PaymentState = "idle"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStateCompleted  PaymentState = "completed"
	PaymentStateFailed     PaymentState = "failed"
)

// IsTerminal reports whether the attempt has finished.
func (s PaymentState) IsTerminal() bool {
	return s == PaymentStateCompleted || s == PaymentStateFailed
}
