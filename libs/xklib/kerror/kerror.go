package kerror

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

type Keypair struct {
	K string
	V interface{}
}

// Kerror is the error type used across the north pole services.
// Details is a slice (not a map) so the rendering keeps insertion order.
type Kerror struct {
	Type      string
	Msg       string
	Details   []Keypair
	Stack     string // optional, only the inner most kerror carries a full stack
	CausedBy  error
	ErrorCode ErrorCode
}

func Create(errType string, msg string) *Kerror {
	return &Kerror{
		Stack:     GetCallStack(1),
		Type:      errType,
		Msg:       msg,
		ErrorCode: EC_UNKNOWN,
	}
}

func (ke *Kerror) Error() string {
	return ke.ShortString()
}

func (ke *Kerror) String() string {
	return ke.FullString()
}

func (ke *Kerror) With(key string, val interface{}) *Kerror {
	ke.Details = append(ke.Details, Keypair{K: key, V: val})
	return ke
}

func (ke *Kerror) WithErrorCode(code ErrorCode) *Kerror {
	ke.ErrorCode = code
	return ke
}

// Unwrap lets errors.Is / errors.As walk into CausedBy.
func (ke *Kerror) Unwrap() error {
	return ke.CausedBy
}

func (ke *Kerror) WithoutStack() *Kerror {
	ke.Stack = ""
	return ke
}

func (ke *Kerror) GetType() string {
	return ke.Type
}

func (ke *Kerror) ShortString() string {
	var b strings.Builder
	b.Grow(256)
	ke.toString(&b, false /*withStack*/, false /*withCause*/)
	return b.String()
}

func (ke *Kerror) FullString() string {
	var b strings.Builder
	b.Grow(1000)
	ke.toString(&b, true /*withStack*/, true /*withCause*/)
	return b.String()
}

func (ke *Kerror) CausedByString() string {
	var b strings.Builder
	b.Grow(256)
	ke.buildCausedByString(&b, false /*withStack*/)
	return b.String()
}

func (ke *Kerror) toString(b *strings.Builder, withStack, withCause bool) {
	fmt.Fprintf(b, "%s: %s", ke.Type, ke.Msg)
	for _, item := range ke.Details {
		fmt.Fprintf(b, ", %s=%v", item.K, formatVal(item.V))
	}
	if withStack && ke.Stack != "" {
		fmt.Fprintf(b, ", stack=%s", ke.Stack)
	}
	if withCause && ke.CausedBy != nil {
		fmt.Fprintf(b, ";\n Caused by: ")
		ke.buildCausedByString(b, withStack)
		fmt.Fprintf(b, "\n")
	}
}

func (ke *Kerror) buildCausedByString(b *strings.Builder, withStack bool) {
	if ke.CausedBy == nil {
		return
	}
	if cause, ok := ke.CausedBy.(*Kerror); ok {
		cause.toString(b, withStack, true)
	} else {
		fmt.Fprintf(b, "%s", ke.CausedBy.Error())
	}
}

func (ke *Kerror) GetHttpErrorCode() int {
	return ke.ErrorCode.ToHttpErrorCode()
}

func formatVal(val interface{}) interface{} {
	if val == nil {
		return nil
	} else if bytes, ok := val.([]byte); ok {
		return hex.EncodeToString(bytes)
	}
	return val
}

func GetCallStack(removeTop int) string {
	stack := string(debug.Stack())
	split := strings.SplitAfterN(stack, "\n", 6+2*removeTop)
	return split[len(split)-1]
}

// Wrap: stack trace is expensive, only ask for it when the cause is not already a Kerror.
// The error code of an inner Kerror is inherited.
func Wrap(err error, errType, msg string, needStack bool) *Kerror {
	ke := &Kerror{
		Type:      errType,
		Msg:       msg,
		CausedBy:  err,
		ErrorCode: EC_UNKNOWN,
	}
	if inner, ok := err.(*Kerror); ok {
		ke.ErrorCode = inner.ErrorCode
	} else if needStack {
		ke.Stack = GetCallStack(1)
	}
	return ke
}

// GetErrorCode returns the code of the outer most Kerror in the chain, EC_UNKNOWN otherwise.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return EC_OK
	}
	var ke *Kerror
	if errors.As(err, &ke) {
		return ke.ErrorCode
	}
	return EC_UNKNOWN
}

func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// ******************** Retryable ********************
type retryable interface {
	Retryable() bool
}

func (ke *Kerror) Retryable() bool {
	return ke.ErrorCode == EC_RETRYABLE
}

// Retryable: works for any error, not only Kerror.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	retry, ok := err.(retryable)
	if !ok {
		return false
	}
	return retry.Retryable()
}
