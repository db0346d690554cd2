package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// CodedError is a failure that carries a stable code for the caller, such as
// a rejected native module call.
type CodedError interface {
	error
	ErrorCode() string
	Detail() string
}

// OperationError records which operation failed and for which request.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Code returns the code of the first coded error wrapped by e, or "".
func (e *OperationError) Code() string {
	if e == nil {
		return ""
	}
	if coded, ok := AsCoded(e.Err); ok {
		return coded.ErrorCode()
	}
	return ""
}

// Fields returns the zap fields describing e.
func (e *OperationError) Fields() []zap.Field {
	fields := []zap.Field{zap.String("operation", e.Operation)}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	if code := e.Code(); code != "" {
		fields = append(fields, zap.String("code", code))
	}
	return append(fields, zap.Error(e.Err))
}

// NewOperationError wraps err with the failing operation and request. A nil
// err stays nil.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// AsCoded finds the first CodedError in err's chain.
func AsCoded(err error) (CodedError, bool) {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}
