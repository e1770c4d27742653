package provider

import (
	"fmt"

	"moff.io/wallet-bridge/pkg/errors"
)

// Well-known EIP-1193 style provider error codes.
const (
	// CodeUserRejected signals the user declined the permission prompt.
	CodeUserRejected = 4001
	// CodeRequestPending signals an equivalent permission request is already
	// in flight for this origin. Callers should back off instead of retrying.
	CodeRequestPending = -32002
)

// RPCError is a failure answered by the provider itself, as opposed to a
// transport failure reaching it.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider rpc error %d: %s", e.Code, e.Message)
}

// IsRequestPending matches the duplicate-pending-request condition through
// arbitrarily wrapped error chains.
func IsRequestPending(err error) bool {
	return hasCode(err, CodeRequestPending)
}

// IsUserRejected matches a user permission rejection through arbitrarily
// wrapped error chains.
func IsUserRejected(err error) bool {
	return hasCode(err, CodeUserRejected)
}

func hasCode(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}
