package enums

import "fmt"

// CheckoutStep is the wizard position persisted on a checkout session.
type CheckoutStep string

const (
	CheckoutStepBilling  CheckoutStep = "billing"
	CheckoutStepShipping CheckoutStep = "shipping"
	CheckoutStepPayment  CheckoutStep = "payment"
)

var checkoutStepOrder = map[CheckoutStep]int{
	CheckoutStepBilling:  0,
	CheckoutStepShipping: 1,
	CheckoutStepPayment:  2,
}

func (s CheckoutStep) String() string {
	return string(s)
}

func (s CheckoutStep) IsValid() bool {
	_, ok := checkoutStepOrder[s]
	return ok
}

// Position returns the ordinal position of the step in the wizard.
func (s CheckoutStep) Position() int {
	if pos, ok := checkoutStepOrder[s]; ok {
		return pos
	}
	return -1
}

// ParseCheckoutStep converts raw input into a CheckoutStep.
func ParseCheckoutStep(value string) (CheckoutStep, error) {
	step := CheckoutStep(value)
	if !step.IsValid() {
		return "", fmt.Errorf("invalid checkout step %q", value)
	}
	return step, nil
}
