package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Store errors
	ErrNotFound    = fmt.Errorf("record not found")
	ErrConstraint  = fmt.Errorf("constraint violation")
	ErrTxnAborted  = fmt.Errorf("transaction aborted")
	ErrStoreClosed = fmt.Errorf("store closed")
	ErrOutOfScope  = fmt.Errorf("store not in transaction scope")
	ErrReadOnly    = fmt.Errorf("write request in readonly transaction")
	ErrDecode      = fmt.Errorf("stored value decode failed")

	// Engine errors
	ErrReconcileBusy = fmt.Errorf("record reconciliation already in flight")
	ErrEngineStopped = fmt.Errorf("engine stopped")

	// Record errors
	ErrBadTransition = fmt.Errorf("invalid download state transition")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
