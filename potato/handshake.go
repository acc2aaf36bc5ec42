package potato

// HandshakeState enumerates the one-shot channel-open handshake's
// progress. Named states are kept even though a couple collapse into
// the same transition in this implementation, so that log lines and
// tests can name the step they are at.
type HandshakeState uint8

const (
	StepA HandshakeState = iota
	StepB
	StepC
	StepD
	StepE
	PostStepE
	StepF
	PostStepF
	Finished
	OnChainTransition
	OnChainWaitingForConditions
	OnChainWaitingForUnrollSpend
	OnChain
	WaitingForShutdown
	Completed
)

func (s HandshakeState) String() string {
	switch s {
	case StepA:
		return "StepA"
	case StepB:
		return "StepB"
	case StepC:
		return "StepC"
	case StepD:
		return "StepD"
	case StepE:
		return "StepE"
	case PostStepE:
		return "PostStepE"
	case StepF:
		return "StepF"
	case PostStepF:
		return "PostStepF"
	case Finished:
		return "Finished"
	case OnChainTransition:
		return "OnChainTransition"
	case OnChainWaitingForConditions:
		return "OnChainWaitingForConditions"
	case OnChainWaitingForUnrollSpend:
		return "OnChainWaitingForUnrollSpend"
	case OnChain:
		return "OnChain"
	case WaitingForShutdown:
		return "WaitingForShutdown"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}
