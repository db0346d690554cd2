package facedetector

// Probability is a classifier output in [0,1] that the model may decline to estimate.
type Probability struct {
	value float32
	valid bool
}

// Known returns an estimated probability.
func Known(v float32) Probability {
	return Probability{value: v, valid: true}
}

// Unknown returns a probability the model did not estimate.
func Unknown() Probability {
	return Probability{}
}

// Valid reports whether the model produced an estimate.
func (p Probability) Valid() bool {
	return p.valid
}

// Value returns the estimate and whether it exists.
func (p Probability) Value() (float32, bool) {
	return p.value, p.valid
}

// OrZero returns the estimate, or 0 when the model abstained.
func (p Probability) OrZero() float32 {
	if !p.valid {
		return 0
	}
	return p.value
}
