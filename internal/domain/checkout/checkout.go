// Package checkout implements the two-step checkout flow: address capture
// followed by payment method selection. The flow is a small state machine
// embedded in the cart session; advancing past the address step is gated on
// field validation, and navigating back never loses captured values.
package checkout

import (
	"fmt"
	"regexp"

	"github.com/go-faster/errors"
)

// Step identifies the current checkout step.
type Step string

const (
	// StepAddress captures the shipping address.
	StepAddress Step = "address"
	// StepPayment selects the payment method.
	StepPayment Step = "payment"
)

// PaymentMethod enumerates the supported payment branches.
type PaymentMethod string

const (
	// MethodOnline settles through the hosted payment gateway.
	MethodOnline PaymentMethod = "online"
	// MethodCOD records a cash-on-delivery order directly.
	MethodCOD PaymentMethod = "cod"
)

// ErrNotAtPaymentStep is returned when a payment-step operation is attempted
// while the flow is still capturing the address.
var ErrNotAtPaymentStep = errors.New("checkout has not reached the payment step")

var (
	phonePattern   = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

// Address is the shipping address captured during the address step and
// persisted on the order at placement.
type Address struct {
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
}

// FieldError reports a single violated address rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated rule for an address submission, so
// the storefront can surface all of them at once.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return "invalid address: " + e.Fields[0].Field + ": " + e.Fields[0].Message
	}
	return fmt.Sprintf("invalid address: %s and %d more fields", e.Fields[0].Field, len(e.Fields)-1)
}

// ValidateAddress checks every address rule and returns a ValidationError
// listing all violations, or nil when the address is acceptable.
func ValidateAddress(a Address) error {
	var fields []FieldError

	require := func(field, value, message string) {
		if value == "" {
			fields = append(fields, FieldError{Field: field, Message: message})
		}
	}
	require("fullName", a.FullName, "full name is required")
	require("addressLine1", a.AddressLine1, "address line is required")
	require("city", a.City, "city is required")
	require("state", a.State, "state is required")

	switch {
	case a.Phone == "":
		fields = append(fields, FieldError{Field: "phone", Message: "phone is required"})
	case !phonePattern.MatchString(a.Phone):
		fields = append(fields, FieldError{Field: "phone", Message: "phone must be a 10-digit number starting with 6-9"})
	}

	switch {
	case a.Pincode == "":
		fields = append(fields, FieldError{Field: "pincode", Message: "pincode is required"})
	case !pincodePattern.MatchString(a.Pincode):
		fields = append(fields, FieldError{Field: "pincode", Message: "pincode must be exactly 6 digits"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Flow is the checkout state carried on a cart session. The zero value is a
// flow at the address step with nothing captured.
type Flow struct {
	Step    Step          `json:"step,omitempty"`
	Address *Address      `json:"address,omitempty"`
	Method  PaymentMethod `json:"method,omitempty"`
}

// CurrentStep reports the flow's step, treating the zero value as StepAddress.
func (f *Flow) CurrentStep() Step {
	if f.Step == "" {
		return StepAddress
	}
	return f.Step
}

// SubmitAddress validates the address and advances to the payment step.
// On validation failure the flow does not advance, but the submitted values
// are still retained so the user can correct them without retyping.
func (f *Flow) SubmitAddress(a Address) error {
	if err := ValidateAddress(a); err != nil {
		f.Address = &a
		return err
	}
	f.Address = &a
	f.Step = StepPayment
	return nil
}

// Back returns from the payment step to the address step. Previously entered
// address values are preserved. Calling Back at the address step is a no-op.
func (f *Flow) Back() {
	f.Step = StepAddress
}

// SelectPayment records the chosen payment method. It fails unless the flow
// has advanced to the payment step.
func (f *Flow) SelectPayment(m PaymentMethod) error {
	if f.CurrentStep() != StepPayment {
		return ErrNotAtPaymentStep
	}
	if m != MethodOnline && m != MethodCOD {
		return errors.Errorf("unsupported payment method: %q", m)
	}
	f.Method = m
	return nil
}

// Reset clears the flow back to its initial state. Used when the cart is
// cleared or an order completes.
func (f *Flow) Reset() {
	*f = Flow{}
}
