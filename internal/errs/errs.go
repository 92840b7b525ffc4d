// Package errs defines the error taxonomy shared by the resize engine and the
// HTTP layer in front of it.
//
// Every failure the engine surfaces carries a Kind. Each Kind maps onto a
// platform error code from github.com/jmgilman/go/errors, so errors built here
// also answer platform.GetCode and platform.IsRetryable. Callers classify
// errors with KindOf or with errors.Is against the sentinel values:
//
//	if errors.Is(err, errs.ErrValidation) {
//	    // 400
//	}
//
// Wrapping with fmt.Errorf("...: %w", err) or cache.ComputeError keeps the
// classification intact.
package errs

import (
	"errors"
	"fmt"

	platform "github.com/jmgilman/go/errors"
)

// Kind classifies a failure.
type Kind int

const (
	// Internal is an unclassified failure, including recovered panics.
	Internal Kind = iota
	// Validation is a malformed or out-of-range request parameter.
	Validation
	// SourceNotFound means the source identity does not resolve to readable data.
	SourceNotFound
	// Decode means the source bytes are not a supported or valid image.
	Decode
	// InvalidDimensions means the resize would produce a degenerate target.
	InvalidDimensions
	// Encode means the pixel buffer cannot be serialized to the requested format.
	Encode
)

// Codes for failures the platform code set has no name for.
const (
	CodeDecode            platform.ErrorCode = "DECODE_FAILED"
	CodeInvalidDimensions platform.ErrorCode = "INVALID_DIMENSIONS"
	CodeEncode            platform.ErrorCode = "ENCODE_FAILED"
)

var kindNames = [...]string{
	Internal:          "internal",
	Validation:        "validation",
	SourceNotFound:    "source_not_found",
	Decode:            "decode",
	InvalidDimensions: "invalid_dimensions",
	Encode:            "encode",
}

var kindCodes = [...]platform.ErrorCode{
	Internal:          platform.CodeInternal,
	Validation:        platform.CodeInvalidInput,
	SourceNotFound:    platform.CodeNotFound,
	Decode:            CodeDecode,
	InvalidDimensions: CodeInvalidDimensions,
	Encode:            CodeEncode,
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Code returns the platform error code for k.
func (k Kind) Code() platform.ErrorCode {
	if int(k) < 0 || int(k) >= len(kindCodes) {
		return platform.CodeUnknown
	}
	return kindCodes[k]
}

// kindForCode is the inverse of Kind.Code; unknown codes are Internal.
func kindForCode(code platform.ErrorCode) Kind {
	for k, c := range kindCodes {
		if c == code {
			return Kind(k)
		}
	}
	return Internal
}

// Error is a classified failure. It implements platform.PlatformError; the
// wrapped platform error carries the message, cause and an "op" context entry.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "params.resolve".
	Op string

	pe platform.PlatformError
}

var _ platform.PlatformError = (*Error)(nil)

func (e *Error) Error() string {
	msg := e.Message()
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if cause := e.Unwrap(); cause != nil {
		return msg + ": " + cause.Error()
	}
	return msg
}

// Code returns the platform code of e's Kind.
func (e *Error) Code() platform.ErrorCode {
	return e.Kind.Code()
}

// Classification reports whether retrying could help. Every Kind is
// permanent except where a wrapped platform error says otherwise.
func (e *Error) Classification() platform.ErrorClassification {
	if e.pe == nil {
		return platform.ClassificationPermanent
	}
	return e.pe.Classification()
}

// Message returns the message without the op prefix or cause.
func (e *Error) Message() string {
	if e.pe == nil {
		return ""
	}
	return e.pe.Message()
}

// Context returns a copy of the structured context, including "op".
func (e *Error) Context() map[string]interface{} {
	if e.pe == nil {
		return nil
	}
	return e.pe.Context()
}

func (e *Error) Unwrap() error {
	if e.pe == nil {
		return nil
	}
	return e.pe.Unwrap()
}

// Is reports whether target is a sentinel of the same kind. Sentinels are
// Errors with no Op and nothing wrapped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.pe != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInternal          = &Error{Kind: Internal}
	ErrValidation        = &Error{Kind: Validation}
	ErrSourceNotFound    = &Error{Kind: SourceNotFound}
	ErrDecode            = &Error{Kind: Decode}
	ErrInvalidDimensions = &Error{Kind: InvalidDimensions}
	ErrEncode            = &Error{Kind: Encode}
)

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	var pe platform.PlatformError
	if err != nil {
		pe = platform.WrapWithContext(err, kind.Code(), msg, map[string]interface{}{"op": op})
	} else {
		pe = platform.WithContext(platform.New(kind.Code(), msg), "op", op)
	}
	return &Error{Kind: kind, Op: op, pe: pe}
}

// Validationf builds a Validation error with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return E(Validation, op, fmt.Sprintf(format, args...), nil)
}

// NotFound builds a SourceNotFound error for the given identity.
func NotFound(op, identity string, err error) *Error {
	return E(SourceNotFound, op, fmt.Sprintf("source %q not found", identity), err)
}

// InvalidDimensionsf builds an InvalidDimensions error with a formatted message.
func InvalidDimensionsf(op, format string, args ...any) *Error {
	return E(InvalidDimensions, op, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the kind of the first classified error in err's chain.
// Platform errors from other packages are classified by their code; anything
// else is Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return kindForCode(platform.GetCode(err))
}
