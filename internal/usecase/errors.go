package usecase

// DomainError: the caller asked for something the business rules refuse.
// Maps to 4xx at the HTTP boundary.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	_, ok := err.(*DomainError)
	return ok
}

// TechnicalError: infrastructure failed underneath a valid request. Maps
// to 500.
type TechnicalError struct {
	Code    string
	Message string
}

func (e *TechnicalError) Error() string {
	return e.Message
}

func IsTechnicalError(err error) bool {
	_, ok := err.(*TechnicalError)
	return ok
}

const (
	CodeLeadNotFound    = "LEAD_NOT_FOUND"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeStorageFailure  = "STORAGE_FAILURE"
	CodeDispatchFailure = "DISPATCH_FAILURE"
)

func ErrLeadNotFound(id string) *DomainError {
	return &DomainError{Code: CodeLeadNotFound, Message: "lead not found: " + id}
}
