package compliance

import "fmt"

// Error kinds returned across the tool boundary. These are the values the
// model sees, so they stay stable strings.
const (
	ErrKindNoData        = "no_data"
	ErrKindMissingParams = "missing_params"
	ErrKindUnknownQuery  = "unknown_query"
	ErrKindDatabase      = "database_error"
)

// QueryError carries the structured error kind alongside a human-readable
// message. Handlers convert it into the tool result envelope instead of
// surfacing it as a failed turn.
type QueryError struct {
	Kind    string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func noData(format string, args ...interface{}) *QueryError {
	return &QueryError{Kind: ErrKindNoData, Message: fmt.Sprintf(format, args...)}
}

func missingParams(format string, args ...interface{}) *QueryError {
	return &QueryError{Kind: ErrKindMissingParams, Message: fmt.Sprintf(format, args...)}
}

func dbError(err error) *QueryError {
	return &QueryError{Kind: ErrKindDatabase, Message: err.Error()}
}
