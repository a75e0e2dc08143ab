package docmap

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/reoring/docmap/i18n"
)

// Kind classifies an Error by the phase that produced it.
type Kind uint8

const (
	// KindConfiguration errors are raised while building class descriptors or
	// registering them. They never occur during decode or encode of a valid
	// configuration.
	KindConfiguration Kind = iota + 1
	// KindFormat errors report a document that does not fit its class map.
	KindFormat
	// KindConstruction errors come from creator selection or invocation.
	KindConstruction
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindFormat:
		return "format"
	case KindConstruction:
		return "construction"
	}
	return "unknown"
}

// Error codes (exported consts for IDE completion and type safety by convention)
const (
	// configuration
	CodeFrozen                   = "frozen"
	CodeNotFrozen                = "not_frozen"
	CodeDuplicateElement         = "duplicate_element"
	CodeDuplicateDiscriminator   = "duplicate_discriminator"
	CodeDuplicateClass           = "duplicate_class"
	CodeConflictingDiscriminator = "conflicting_discriminator"
	CodeConflictingIgnore        = "conflicting_ignore"
	CodeInvalidMember            = "invalid_member"
	CodeInvalidDefault           = "invalid_default"
	CodeInvalidCodec             = "invalid_codec"
	CodeInvalidCreator           = "invalid_creator"
	CodeUnmappedType             = "unmapped_type"
	CodeInvalidOverride          = "invalid_override"
	CodeInvalidID                = "invalid_id"
	// format
	CodeUnexpectedType       = "unexpected_type"
	CodeUnknownElement       = "unknown_element"
	CodeRequired             = "required"
	CodeDiscriminatorUnknown = "discriminator_unknown"
	CodeMemberDecode         = "member_decode"
	CodeMemberEncode         = "member_encode"
	CodeMalformed            = "malformed"
	// construction
	CodeNoCreator        = "no_creator"
	CodeAmbiguousCreator = "ambiguous_creator"
	CodeCreatorFailed    = "creator_failed"
)

// Sentinels matched by every Error of the corresponding Kind:
//
//	if errors.Is(err, docmap.ErrFormat) { ... }
var (
	ErrConfiguration = errors.New("docmap: configuration error")
	ErrFormat        = errors.New("docmap: format error")
	ErrConstruction  = errors.New("docmap: construction error")
)

// Error is the single error type reported by docmap packages.
type Error struct {
	Kind    Kind
	Code    string       // One of the codes listed above.
	Type    reflect.Type // Mapped type involved, if any.
	Member  string       // Go member name, if any.
	Element string       // Element name on the wire, if any.
	Message string       // Optional: overrides the catalog message.
	Hint    string       // Optional: remediation hint.
	Cause   error        // Optional: underlying error.
}

// NewError returns an Error of the given kind and code for type t (which may be nil).
func NewError(kind Kind, code string, t reflect.Type) *Error {
	return &Error{Kind: kind, Code: code, Type: t}
}

// WithMember records the Go member name.
func (e *Error) WithMember(name string) *Error { e.Member = name; return e }

// WithElement records the element name.
func (e *Error) WithElement(name string) *Error { e.Element = name; return e }

// WithMessage replaces the catalog message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// WithHint attaches a remediation hint.
func (e *Error) WithHint(hint string) *Error { e.Hint = hint; return e }

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error { e.Cause = err; return e }

func (e *Error) Error() string {
	b := &strings.Builder{}
	b.WriteString("docmap: ")
	b.WriteString(e.Code)
	b.WriteString(": ")
	b.WriteString(e.message())
	var ctx []string
	if e.Type != nil {
		ctx = append(ctx, "type "+e.Type.String())
	}
	if e.Member != "" {
		ctx = append(ctx, "member "+e.Member)
	}
	if e.Element != "" {
		ctx = append(ctx, fmt.Sprintf("element %q", e.Element))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Hint != "" {
		b.WriteString("; hint: ")
		b.WriteString(e.Hint)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) message() string {
	if e.Message != "" {
		return e.Message
	}
	data := map[string]string{"member": e.Member, "element": e.Element}
	if e.Type != nil {
		data["type"] = e.Type.String()
	}
	return i18n.T(e.Code, data)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the kind sentinels, and any *Error target with the same Code
// (and Kind, when the target sets one).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrFormat:
		return e.Kind == KindFormat
	case ErrConstruction:
		return e.Kind == KindConstruction
	}
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return t.Code == e.Code && (t.Kind == 0 || t.Kind == e.Kind)
}

// AsError extracts the outermost *Error from err using errors.As internally.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any *Error in err's tree carries code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &Error{Code: code})
}
