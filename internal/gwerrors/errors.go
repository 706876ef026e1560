// Package gwerrors provides the gateway's typed error-code system, used by
// every registry and by Manager in place of exceptions or bare errors. The
// shape (Error type carrying a stable code plus a human message, with
// constructors per code) follows the teacher's internal/errors package;
// the code set itself is SPEC_FULL.md §6's gateway error codes rather than
// the teacher's HTTP-status-oriented set.
package gwerrors

import "fmt"

// Code is a stable, numeric error identifier. Unlike the teacher's string
// error codes, Code is a defined type so callers can switch on it
// exhaustively and the compiler catches typos.
type Code int

const (
	SUCCESS Code = iota
	LibraryNotFound
	LibraryFailedToOpen
	LibraryNotAllowCreateInstance
	LibraryInUse
	NodeExist
	NodeNotExist
	NodeNotAllowSubscribe
	NodeNotAllowMap
	TemplateNotFound
	TemplateExist
	GroupNotFound
	GroupExist
	TagNotFound
	TagExist
	PluginNotFound
	PluginExist
	PluginNotSupportTemplate
	GroupNotAllow
	GroupParameterInvalid
	SubscriptionNotFound
	EInternal
)

func (c Code) String() string {
	switch c {
	case SUCCESS:
		return "SUCCESS"
	case LibraryNotFound:
		return "LIBRARY_NOT_FOUND"
	case LibraryFailedToOpen:
		return "LIBRARY_FAILED_TO_OPEN"
	case LibraryNotAllowCreateInstance:
		return "LIBRARY_NOT_ALLOW_CREATE_INSTANCE"
	case LibraryInUse:
		return "LIBRARY_IN_USE"
	case NodeExist:
		return "NODE_EXIST"
	case NodeNotExist:
		return "NODE_NOT_EXIST"
	case NodeNotAllowSubscribe:
		return "NODE_NOT_ALLOW_SUBSCRIBE"
	case NodeNotAllowMap:
		return "NODE_NOT_ALLOW_MAP"
	case TemplateNotFound:
		return "TEMPLATE_NOT_FOUND"
	case TemplateExist:
		return "TEMPLATE_EXIST"
	case GroupNotFound:
		return "GROUP_NOT_FOUND"
	case GroupExist:
		return "GROUP_EXIST"
	case TagNotFound:
		return "TAG_NOT_FOUND"
	case TagExist:
		return "TAG_EXIST"
	case PluginNotFound:
		return "PLUGIN_NOT_FOUND"
	case PluginExist:
		return "PLUGIN_EXIST"
	case PluginNotSupportTemplate:
		return "PLUGIN_NOT_SUPPORT_TEMPLATE"
	case GroupNotAllow:
		return "GROUP_NOT_ALLOW"
	case GroupParameterInvalid:
		return "GROUP_PARAMETER_INVALID"
	case SubscriptionNotFound:
		return "SUBSCRIPTION_NOT_FOUND"
	case EInternal:
		return "EINTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Error is the gateway's typed error value. A nil *Error means SUCCESS;
// every registry/Manager operation that can fail returns (*Error, bool) or
// just *Error, never a bare error.
type Error struct {
	code    Code
	message string
	details string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func NewWithDetails(code Code, message, details string) *Error {
	return &Error{code: code, message: message, details: details}
}

// Wrap attaches an underlying error as the cause, preserving it for
// errors.Unwrap while still surfacing a stable gateway Code to callers.
func Wrap(code Code, message string, cause error) *Error {
	e := &Error{code: code, message: message, cause: cause}
	if cause != nil {
		e.details = cause.Error()
	}
	return e
}

func (e *Error) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.code, e.message, e.details)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

// Is reports whether err carries the given gateway Code, unwrapping through
// any wrapped *Error chain.
func Is(err error, code Code) bool {
	var ge *Error
	if !asError(err, &ge) {
		return false
	}
	return ge.code == code
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ge, ok := err.(*Error); ok {
			*target = ge
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Convenience constructors mirroring the teacher's per-code helpers.

func ErrNodeNotExist(name string) *Error {
	return New(NodeNotExist, fmt.Sprintf("node %q does not exist", name))
}

func ErrNodeExist(name string) *Error {
	return New(NodeExist, fmt.Sprintf("node %q already exists", name))
}

func ErrPluginNotFound(name string) *Error {
	return New(PluginNotFound, fmt.Sprintf("plugin %q not found", name))
}

func ErrTemplateNotFound(name string) *Error {
	return New(TemplateNotFound, fmt.Sprintf("template %q not found", name))
}

func ErrGroupNotFound(name string) *Error {
	return New(GroupNotFound, fmt.Sprintf("group %q not found", name))
}

func ErrTagNotFound(name string) *Error {
	return New(TagNotFound, fmt.Sprintf("tag %q not found", name))
}

func ErrInternal(message string, cause error) *Error {
	return Wrap(EInternal, message, cause)
}
