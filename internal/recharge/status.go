package recharge

// EntityStatus tracks what the requesting entity (the organizational
// customer) sees of the recharge.
type EntityStatus string

const (
	EntityPending          EntityStatus = "pending"
	EntityPaymentPending   EntityStatus = "payment_pending"
	EntityPaymentSubmitted EntityStatus = "payment_submitted"
	EntityCompleted        EntityStatus = "completed"
	EntityRejected         EntityStatus = "rejected"
)

// FinanceStatus tracks the finance role's decision.
type FinanceStatus string

const (
	FinancePending   FinanceStatus = "pending"
	FinanceApproved  FinanceStatus = "approved"
	FinanceCompleted FinanceStatus = "completed"
	FinanceRejected  FinanceStatus = "rejected"
)

// VerificationStatus tracks the independent verification role.
// Only PT-tagged requests go through verification; CT requests stay
// not_required because finance verifies them itself.
type VerificationStatus string

const (
	VerificationNotRequired VerificationStatus = "not_required"
	VerificationPending     VerificationStatus = "pending"
	VerificationApproved    VerificationStatus = "approved"
	VerificationRejected    VerificationStatus = "rejected"
)

// OperationsStatus tracks the fulfillment pipeline.
type OperationsStatus string

const (
	OpsPending             OperationsStatus = "pending"
	OpsWaitingVerification OperationsStatus = "waiting_verification"
	OpsWaitingOperations   OperationsStatus = "waiting_operations"
	OpsProcessing          OperationsStatus = "processing"
	OpsCompleted           OperationsStatus = "completed"
	OpsRejected            OperationsStatus = "rejected"
	OpsCancelled           OperationsStatus = "cancelled"
)

// transitionTable is a fixed adjacency table for one status dimension.
// Terminal states map to empty sets.
type transitionTable[S ~string] map[S][]S

func (t transitionTable[S]) isLegal(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitionTable[S]) allowedNext(from S) []S {
	next := t[from]
	out := make([]S, len(next))
	copy(out, next)
	return out
}

var entityTransitions = transitionTable[EntityStatus]{
	EntityPending:          {EntityPaymentPending, EntityRejected},
	EntityPaymentPending:   {EntityPaymentSubmitted, EntityRejected},
	EntityPaymentSubmitted: {EntityCompleted, EntityRejected},
}

var financeTransitions = transitionTable[FinanceStatus]{
	FinancePending:  {FinanceApproved, FinanceRejected},
	FinanceApproved: {FinanceCompleted, FinanceRejected},
}

var verificationTransitions = transitionTable[VerificationStatus]{
	VerificationNotRequired: {VerificationPending},
	VerificationPending:     {VerificationApproved, VerificationRejected},
}

var operationsTransitions = transitionTable[OperationsStatus]{
	OpsPending:             {OpsWaitingVerification, OpsWaitingOperations, OpsProcessing, OpsCancelled},
	OpsWaitingVerification: {OpsWaitingOperations, OpsCancelled},
	OpsWaitingOperations:   {OpsProcessing, OpsCompleted, OpsRejected, OpsCancelled},
	OpsProcessing:          {OpsCompleted, OpsRejected},
}

// IsLegalEntityMove reports whether the entity status may move from -> to
func IsLegalEntityMove(from, to EntityStatus) bool {
	return entityTransitions.isLegal(from, to)
}

// IsLegalFinanceMove reports whether the finance status may move from -> to
func IsLegalFinanceMove(from, to FinanceStatus) bool {
	return financeTransitions.isLegal(from, to)
}

// IsLegalVerificationMove reports whether the verification status may move from -> to
func IsLegalVerificationMove(from, to VerificationStatus) bool {
	return verificationTransitions.isLegal(from, to)
}

// IsLegalOperationsMove reports whether the operations status may move from -> to
func IsLegalOperationsMove(from, to OperationsStatus) bool {
	return operationsTransitions.isLegal(from, to)
}

// AllowedEntityNext returns the legal next entity statuses
func AllowedEntityNext(from EntityStatus) []EntityStatus {
	return entityTransitions.allowedNext(from)
}

// AllowedFinanceNext returns the legal next finance statuses
func AllowedFinanceNext(from FinanceStatus) []FinanceStatus {
	return financeTransitions.allowedNext(from)
}

// AllowedVerificationNext returns the legal next verification statuses
func AllowedVerificationNext(from VerificationStatus) []VerificationStatus {
	return verificationTransitions.allowedNext(from)
}

// AllowedOperationsNext returns the legal next operations statuses
func AllowedOperationsNext(from OperationsStatus) []OperationsStatus {
	return operationsTransitions.allowedNext(from)
}

// move applies one guarded transition. A table miss where the row already
// sits at the target or in a terminal state means the operation lost a race
// or got retried, so it surfaces as a precondition failure. A miss from a
// live state is an out-of-order call and stays an illegal transition.
func move[S ~string](table transitionTable[S], dimension string, from, to S) (S, error) {
	if table.isLegal(from, to) {
		return to, nil
	}
	if from == to || len(table[from]) == 0 {
		return from, preconditionError(dimension, string(from))
	}
	return from, &TransitionError{Dimension: dimension, From: string(from), To: string(to)}
}

// require asserts that a dimension currently sits at the state an operation
// expects. A row that could still legally reach the expected state has been
// called out of order; a row that cannot has already moved past it.
func require[S ~string](table transitionTable[S], dimension string, current, want S) error {
	if current == want {
		return nil
	}
	if table.isLegal(current, want) {
		return &TransitionError{Dimension: dimension, From: string(current), To: string(want)}
	}
	return preconditionError(dimension, string(current))
}

func moveEntity(from, to EntityStatus) (EntityStatus, error) {
	return move(entityTransitions, "entity_status", from, to)
}

func moveFinance(from, to FinanceStatus) (FinanceStatus, error) {
	return move(financeTransitions, "finance_status", from, to)
}

func moveVerification(from, to VerificationStatus) (VerificationStatus, error) {
	return move(verificationTransitions, "verification_status", from, to)
}

func moveOperations(from, to OperationsStatus) (OperationsStatus, error) {
	return move(operationsTransitions, "operations_status", from, to)
}
