package native

import "fmt"

// Status is the result code returned by every engine entry point.
type Status int32

const (
	StatusSuccess Status = iota
	StatusStdError
	StatusUnknownError
	StatusInvalidFilename
	StatusUnsupportedONNXOpsetVersion
	StatusONNXParseError
	StatusInvalidDType
	StatusInvalidAttributeType
	StatusUnsupportedOperatorAttribute
	StatusDimensionMismatch
	StatusVariableNotFound
	StatusIndexOutOfRange
	StatusJSONParseError
	StatusInvalidBackendName
	StatusUnsupportedOperator
	StatusFailedToConfigureOperator
	StatusBackendError
	StatusSameNamedVariableAlreadyExist
	StatusUnsupportedInputDims
	StatusSameNamedParameterAlreadyExist
	StatusSameNamedAttributeAlreadyExist
	StatusInvalidBackendConfigError
	StatusInputNotFoundError
	StatusOutputNotFoundError
)

func (s Status) String() string {
	if _, ok := statusCategories[s]; !ok {
		return fmt.Sprintf("status(%d)", int32(s))
	}
	if s == StatusSuccess {
		return "success"
	}
	return Map(s).String()
}
