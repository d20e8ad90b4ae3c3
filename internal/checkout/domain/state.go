package domain

type CheckoutState string

const (
	StateReceived        CheckoutState = "RECEIVED"
	StateValidated       CheckoutState = "VALIDATED"
	StatePriced          CheckoutState = "PRICED"
	StateSplit           CheckoutState = "SPLIT"
	StatePersisted       CheckoutState = "PERSISTED"
	StateSettled         CheckoutState = "SETTLED"
	StateAwaitingGateway CheckoutState = "AWAITING_GATEWAY_CONFIRMATION"
	StateDone            CheckoutState = "DONE"
)

var transitions = map[CheckoutState][]CheckoutState{
	StateReceived:        {StateValidated},
	StateValidated:       {StatePriced},
	StatePriced:          {StateSplit},
	StateSplit:           {StatePersisted},
	StatePersisted:       {StateSettled, StateAwaitingGateway},
	StateSettled:         {StateDone},
	StateAwaitingGateway: {StateDone},
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == StateDone
}

func (s CheckoutState) String() string {
	return string(s)
}
