package native

import (
	"errors"
	"fmt"
)

// Category classifies a failed engine call. Categories are comparable
// sentinels, so errors.Is(err, native.VariableNotFound) matches any *Error
// of that category through any amount of wrapping.
type Category int

const (
	NoError Category = iota
	StdError
	UnknownError
	InvalidFilename
	UnsupportedONNXOpsetVersion
	ONNXParseError
	InvalidDType
	InvalidAttributeType
	UnsupportedOperatorAttribute
	DimensionMismatch
	VariableNotFound
	IndexOutOfRange
	JSONParseError
	InvalidBackendName
	UnsupportedOperator
	FailedToConfigureOperator
	BackendError
	SameNamedVariableAlreadyExist
	UnsupportedInputDims
	SameNamedParameterAlreadyExist
	SameNamedAttributeAlreadyExist
	InvalidBackendConfigError
	InputNotFoundError
	OutputNotFoundError
)

// Names used by the variable declaration checks.
const (
	DuplicateVariable = SameNamedVariableAlreadyExist
	InvalidDimension  = UnsupportedInputDims
)

var categoryNames = [...]string{
	NoError:                        "NoError",
	StdError:                       "StdError",
	UnknownError:                   "UnknownError",
	InvalidFilename:                "InvalidFilename",
	UnsupportedONNXOpsetVersion:    "UnsupportedONNXOpsetVersion",
	ONNXParseError:                 "ONNXParseError",
	InvalidDType:                   "InvalidDType",
	InvalidAttributeType:           "InvalidAttributeType",
	UnsupportedOperatorAttribute:   "UnsupportedOperatorAttribute",
	DimensionMismatch:              "DimensionMismatch",
	VariableNotFound:               "VariableNotFound",
	IndexOutOfRange:                "IndexOutOfRange",
	JSONParseError:                 "JSONParseError",
	InvalidBackendName:             "InvalidBackendName",
	UnsupportedOperator:            "UnsupportedOperator",
	FailedToConfigureOperator:      "FailedToConfigureOperator",
	BackendError:                   "BackendError",
	SameNamedVariableAlreadyExist:  "SameNamedVariableAlreadyExist",
	UnsupportedInputDims:           "UnsupportedInputDims",
	SameNamedParameterAlreadyExist: "SameNamedParameterAlreadyExist",
	SameNamedAttributeAlreadyExist: "SameNamedAttributeAlreadyExist",
	InvalidBackendConfigError:      "InvalidBackendConfigError",
	InputNotFoundError:             "InputNotFoundError",
	OutputNotFoundError:            "OutputNotFoundError",
}

func (c Category) String() string {
	if c >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Error makes a Category usable as an errors.Is target.
func (c Category) Error() string { return c.String() }

var statusCategories = map[Status]Category{
	StatusSuccess:                        NoError,
	StatusStdError:                       StdError,
	StatusUnknownError:                   UnknownError,
	StatusInvalidFilename:                InvalidFilename,
	StatusUnsupportedONNXOpsetVersion:    UnsupportedONNXOpsetVersion,
	StatusONNXParseError:                 ONNXParseError,
	StatusInvalidDType:                   InvalidDType,
	StatusInvalidAttributeType:           InvalidAttributeType,
	StatusUnsupportedOperatorAttribute:   UnsupportedOperatorAttribute,
	StatusDimensionMismatch:              DimensionMismatch,
	StatusVariableNotFound:               VariableNotFound,
	StatusIndexOutOfRange:                IndexOutOfRange,
	StatusJSONParseError:                 JSONParseError,
	StatusInvalidBackendName:             InvalidBackendName,
	StatusUnsupportedOperator:            UnsupportedOperator,
	StatusFailedToConfigureOperator:      FailedToConfigureOperator,
	StatusBackendError:                   BackendError,
	StatusSameNamedVariableAlreadyExist:  SameNamedVariableAlreadyExist,
	StatusUnsupportedInputDims:           UnsupportedInputDims,
	StatusSameNamedParameterAlreadyExist: SameNamedParameterAlreadyExist,
	StatusSameNamedAttributeAlreadyExist: SameNamedAttributeAlreadyExist,
	StatusInvalidBackendConfigError:      InvalidBackendConfigError,
	StatusInputNotFoundError:             InputNotFoundError,
	StatusOutputNotFoundError:            OutputNotFoundError,
}

// Map returns the category for a status code. StatusSuccess maps to NoError
// and codes this package does not know map to UnknownError.
func Map(s Status) Category {
	if c, ok := statusCategories[s]; ok {
		return c
	}
	return UnknownError
}

// Error is a failed engine call. Message is the engine diagnostic verbatim.
type Error struct {
	Status   Status
	Category Category
	Message  string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	c, ok := target.(Category)
	return ok && c == e.Category
}

// NewError builds an *Error for a non-success status.
func NewError(s Status, msg string) *Error {
	return &Error{Status: s, Category: Map(s), Message: msg}
}

// Check converts a status and its diagnostic into an error, or nil on success.
func Check(s Status, msg string) error {
	if Map(s) == NoError {
		return nil
	}
	return NewError(s, msg)
}

// Errorf is NewError with a formatted message.
func Errorf(s Status, format string, args ...any) *Error {
	return NewError(s, fmt.Sprintf(format, args...))
}

// CategoryOf returns the category carried by err, NoError for nil and
// UnknownError for errors that did not come from an engine.
func CategoryOf(err error) Category {
	if err == nil {
		return NoError
	}
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Category
	}
	return UnknownError
}
