// Package errors provides the typed errors of the native ABI.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/nativeabi/domain/entities"
)

// Sentinel errors reported by Memory implementations and the wire codec.
var (
	// ErrInvalidAddress is returned for addresses a Memory did not hand out,
	// or that were already released.
	ErrInvalidAddress = stdErrors.New("invalid address")
	// ErrNullAddress is returned when a null address is dereferenced.
	ErrNullAddress = stdErrors.New("null address")
	// ErrOutOfBounds is returned for reads or writes past the end of a block.
	ErrOutOfBounds = stdErrors.New("access out of bounds")
	// ErrLimitExceeded is returned when an allocation would exceed a configured limit.
	ErrLimitExceeded = stdErrors.New("allocation limit exceeded")
	// ErrEmbeddedNUL is returned when a string cannot be encoded because it
	// contains a NUL character, which would truncate it on the wire.
	ErrEmbeddedNUL = stdErrors.New("string contains embedded NUL")
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}
	if d := cause(err); d != nil {
		return d
	}
	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    entities.ErrorTypeInternal,
	}
}

// cause returns the structured detail of the first error in err's chain that
// has one, or nil.
func cause(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}
	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}
	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}
	return nil
}

// AllocationError represents a failed block allocation.
type AllocationError struct {
	Err       error
	Requested uint64 // Requested allocation size
	Current   uint64 // Bytes live at the time of the request, when known
	Limit     uint64 // Configured limit, zero when unlimited
}

func (e *AllocationError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("allocation failed: requested %d bytes, current %d bytes, limit %d bytes",
			e.Requested, e.Current, e.Limit)
	}
	if e.Err != nil {
		return fmt.Sprintf("allocation failed: requested %d bytes: %v", e.Requested, e.Err)
	}
	return fmt.Sprintf("allocation failed: requested %d bytes", e.Requested)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *AllocationError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail(entities.ErrorTypeAllocation, e.Error()).
		WithDetails(map[string]any{"requested": e.Requested, "current": e.Current, "limit": e.Limit})
}

// OperationalError is a failure produced by an exported function's own logic.
// It becomes the error field of the envelope the function returns.
type OperationalError struct {
	Err       error
	Operation string
}

func (e *OperationalError) Error() string {
	if e.Operation == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *OperationalError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError. A structured cause is kept as the
// wrapped detail under the operation's name.
func (e *OperationalError) ToErrorDetail() *entities.ErrorDetail {
	d := entities.NewErrorDetail(entities.ErrorTypeOperational, e.Error()).WithCode(e.Operation)
	if inner := cause(e.Err); inner != nil && e.Operation != "" {
		d.Message = e.Operation + " failed"
		d.Wrapped = inner
	}
	return d
}

// Operational wraps err as an OperationalError for op. A nil err yields nil.
func Operational(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationalError{Operation: op, Err: err}
}

// NativeCallError is returned by a consumer when the envelope it read carried
// an error. Message is the decoded error string, verbatim.
type NativeCallError struct {
	Function string
	Message  string
}

func (e *NativeCallError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("native call %s failed: %s", e.Function, e.Message)
	}
	return fmt.Sprintf("native call failed: %s", e.Message)
}

// ToErrorDetail implements DetailedError.
func (e *NativeCallError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Message, Type: entities.ErrorTypeOperational, Code: e.Function}
}

// DecodeError represents structured text that could not be decoded into
// the requested Go type.
type DecodeError struct {
	Err    error
	Caller string
	Type   string
	Text   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to deserialize: caller %s, type %s, text %q: %v", e.Caller, e.Type, e.Text, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *DecodeError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeDecode, Code: e.Type}
}

// WireFormatError represents a wire encoding or decoding failure.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
	Addr      entities.Addr
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s at %s: %v", e.Operation, e.Type, e.Addr, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	d := entities.NewErrorDetail(entities.ErrorTypeInternal, e.Error()).WithCode("wire_format")
	if inner := cause(e.Err); inner != nil {
		d.Message = fmt.Sprintf("wire format %s failed for %s at %s", e.Operation, e.Type, e.Addr)
		d.Wrapped = inner
	}
	return d
}

// ValidationError represents an invalid library manifest or declaration.
type ValidationError struct {
	Err   error
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ValidationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeValidation, Code: e.Field}
}

// PanicError carries a value recovered from a panicking exported function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// ToErrorDetail implements DetailedError.
func (e *PanicError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypePanic, Stack: e.Stack}
}
