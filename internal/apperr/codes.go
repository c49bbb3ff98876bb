package apperr

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Validation
	CodeInvalidWallet      Code = "INVALID_WALLET"
	CodeSelfInvitation     Code = "SELF_INVITATION"
	CodeUnknownPersonality Code = "UNKNOWN_PERSONALITY"
	CodeUnknownDateType    Code = "UNKNOWN_DATE_TYPE"
	CodeUnknownVenue       Code = "UNKNOWN_VENUE"
	CodeUnknownCurrency    Code = "UNKNOWN_CURRENCY"
	CodeInvalidMessage     Code = "INVALID_MESSAGE"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeNotInvitee         Code = "NOT_INVITEE"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"

	// State conflicts
	CodeAgentUnavailable          Code = "AGENT_UNAVAILABLE"
	CodeDuplicateActiveInvitation Code = "DUPLICATE_ACTIVE_INVITATION"
	CodeNotPending                Code = "NOT_PENDING"
	CodeAlreadyResolved           Code = "ALREADY_RESOLVED"

	// Lookups
	CodeInvitationNotFound Code = "INVITATION_NOT_FOUND"
	CodeAgentNotFound      Code = "AGENT_NOT_FOUND"

	// Ledger
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"

	// Collaborators
	CodeStoreUnavailable    Code = "STORE_UNAVAILABLE"
	CodeDialogueUnavailable Code = "DIALOGUE_UNAVAILABLE"
	CodeRegistryUnavailable Code = "REGISTRY_UNAVAILABLE"
)

// Kind groups codes into the categories callers branch on.
type Kind string

const (
	KindUnknown               Kind = "Unknown"
	KindValidation            Kind = "ValidationError"
	KindStateConflict         Kind = "StateConflict"
	KindNotFound              Kind = "NotFound"
	KindInsufficientBalance   Kind = "InsufficientBalance"
	KindDependencyUnavailable Kind = "DependencyUnavailable"
)

// Kind maps the code to its category.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidWallet,
		CodeSelfInvitation,
		CodeUnknownPersonality,
		CodeUnknownDateType,
		CodeUnknownVenue,
		CodeUnknownCurrency,
		CodeInvalidMessage,
		CodeInvalidAmount,
		CodeNotInvitee,
		CodeInvalidArgument:
		return KindValidation

	case CodeAgentUnavailable,
		CodeDuplicateActiveInvitation,
		CodeNotPending,
		CodeAlreadyResolved:
		return KindStateConflict

	case CodeInvitationNotFound,
		CodeAgentNotFound:
		return KindNotFound

	case CodeInsufficientBalance:
		return KindInsufficientBalance

	case CodeStoreUnavailable,
		CodeDialogueUnavailable,
		CodeRegistryUnavailable:
		return KindDependencyUnavailable

	default:
		return KindUnknown
	}
}
