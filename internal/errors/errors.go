package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/ledger"
)

type ErrorCode string

const (
	// Network and connectivity errors (retriable)
	ErrCodeNetworkFailure    ErrorCode = "NETWORK_FAILURE"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeGatewayFailure    ErrorCode = "GATEWAY_FAILURE"
	ErrCodeStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"

	// Resource errors
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrCodeContractNotFound ErrorCode = "CONTRACT_NOT_FOUND"

	// Validation errors (not retriable)
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"

	// Transaction errors
	ErrCodeTransactionFailed  ErrorCode = "TRANSACTION_FAILED"
	ErrCodeTransactionTimeout ErrorCode = "TRANSACTION_TIMEOUT"
	ErrCodeEndorsementFailed  ErrorCode = "ENDORSEMENT_FAILED"
	ErrCodeCommitFailed       ErrorCode = "COMMIT_FAILED"

	// Authentication and authorization
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeCertificateError ErrorCode = "CERTIFICATE_ERROR"

	// Data errors
	ErrCodeDataCorruption ErrorCode = "DATA_CORRUPTION"

	// System errors
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	Details    string
	Err        error
	HTTPStatus int
	Retriable  bool
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	appErr := &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Context: make(map[string]interface{}),
	}
	appErr.setDefaults()
	return appErr
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

func (e *AppError) setDefaults() {
	switch e.Code {
	case ErrCodeNetworkFailure, ErrCodeConnectionTimeout, ErrCodeStoreUnavailable:
		e.HTTPStatus = http.StatusServiceUnavailable
		e.Retriable = true

	case ErrCodeGatewayFailure:
		e.HTTPStatus = http.StatusBadGateway
		e.Retriable = true

	case ErrCodeNotFound, ErrCodeContractNotFound:
		e.HTTPStatus = http.StatusNotFound
		e.Retriable = false

	case ErrCodeAlreadyExists:
		e.HTTPStatus = http.StatusConflict
		e.Retriable = false

	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidAmount:
		e.HTTPStatus = http.StatusBadRequest
		e.Retriable = false

	case ErrCodePermissionDenied:
		e.HTTPStatus = http.StatusForbidden
		e.Retriable = false

	case ErrCodeCertificateError:
		e.HTTPStatus = http.StatusUnauthorized
		e.Retriable = false

	case ErrCodeTransactionTimeout:
		e.HTTPStatus = http.StatusGatewayTimeout
		e.Retriable = true

	case ErrCodeTransactionFailed, ErrCodeEndorsementFailed, ErrCodeCommitFailed:
		e.HTTPStatus = http.StatusInternalServerError
		e.Retriable = true

	case ErrCodeDataCorruption:
		e.HTTPStatus = http.StatusInternalServerError
		e.Retriable = false

	case ErrCodeNotImplemented:
		e.HTTPStatus = http.StatusNotImplemented
		e.Retriable = false

	default:
		e.HTTPStatus = http.StatusInternalServerError
		e.Retriable = false
	}
}

// FromError classifies an error returned by a ledger service. Errors that
// still carry a ledger sentinel are mapped directly; anything else went
// through a Fabric peer and is classified by its message.
func FromError(err error, operation string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return NewAppError(ErrCodeNotFound, "Transaction not found", err).
			WithDetails("The requested transaction does not exist in the ledger.")
	case errors.Is(err, ledger.ErrAlreadyExists):
		return NewAppError(ErrCodeAlreadyExists, "Transaction already exists", err).
			WithDetails("A transaction with this identifier already exists in the ledger.")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return NewAppError(ErrCodeInvalidAmount, "Amount is not a number", err)
	case errors.Is(err, ledger.ErrInvalidArgument):
		return NewAppError(ErrCodeValidationFailed, "Invalid transaction", err)
	case errors.Is(err, ledger.ErrMalformedRecord):
		return NewAppError(ErrCodeDataCorruption, "Stored transaction could not be decoded", err)
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return NewAppError(ErrCodeStoreUnavailable, fmt.Sprintf("Ledger store unavailable during %s", operation), err).
			WithDetails("The ledger store could not be reached. Please try again later.")
	case errors.Is(err, errors.ErrUnsupported):
		return NewAppError(ErrCodeNotImplemented, fmt.Sprintf("%s is not supported by this ledger backend", operation), err)
	}

	return ParseBlockchainError(err, operation)
}

func ParseBlockchainError(err error, operation string) *AppError {
	if err == nil {
		return nil
	}

	errMsg := err.Error()
	errLower := strings.ToLower(errMsg)

	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "connection reset") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "network is unreachable") {
		return NewAppError(
			ErrCodeNetworkFailure,
			fmt.Sprintf("Failed to connect to blockchain network during %s", operation),
			err,
		).WithDetails("The blockchain network is currently unreachable. Please try again later.")
	}

	if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
		return NewAppError(
			ErrCodeTransactionTimeout,
			fmt.Sprintf("Transaction timed out during %s", operation),
			err,
		).WithDetails("The blockchain transaction did not complete in time. Please retry.")
	}

	if strings.Contains(errLower, "state store unavailable") {
		return NewAppError(
			ErrCodeStoreUnavailable,
			fmt.Sprintf("Ledger store unavailable during %s", operation),
			err,
		).WithDetails("The peer could not read or write its world state.")
	}

	if strings.Contains(errLower, "not found") ||
		strings.Contains(errLower, "does not exist") {

		if strings.Contains(errLower, "chaincode definition") || strings.Contains(errLower, "contract not found") {
			return NewAppError(
				ErrCodeContractNotFound,
				"Smart contract not found",
				err,
			).WithDetails("The cashflow chaincode is not available on this channel.")
		}
		return NewAppError(
			ErrCodeNotFound,
			"Transaction not found",
			err,
		).WithDetails("The requested transaction does not exist in the ledger.")
	}

	if strings.Contains(errLower, "already exists") {
		return NewAppError(
			ErrCodeAlreadyExists,
			"Transaction already exists",
			err,
		).WithDetails("A transaction with this identifier already exists in the ledger.")
	}

	if strings.Contains(errLower, "amount is not a number") {
		return NewAppError(ErrCodeInvalidAmount, "Amount is not a number", err)
	}

	if strings.Contains(errLower, "invalid argument") ||
		strings.Contains(errLower, "validation failed") {
		return NewAppError(
			ErrCodeValidationFailed,
			"Blockchain validation failed",
			err,
		).WithDetails("The chaincode rejected the request due to validation errors.")
	}

	if strings.Contains(errLower, "malformed record") {
		return NewAppError(ErrCodeDataCorruption, "Stored transaction could not be decoded", err)
	}

	if strings.Contains(errLower, "unsupported operation") {
		return NewAppError(ErrCodeNotImplemented, fmt.Sprintf("%s is not supported by this ledger backend", operation), err)
	}

	if strings.Contains(errLower, "endorsement") ||
		strings.Contains(errLower, "endorser") {
		return NewAppError(
			ErrCodeEndorsementFailed,
			fmt.Sprintf("Failed to get endorsement for %s", operation),
			err,
		).WithDetails("The blockchain peers could not endorse the transaction. This may be due to a policy violation.")
	}

	if strings.Contains(errLower, "commit") ||
		strings.Contains(errLower, "mvcc") {
		return NewAppError(
			ErrCodeCommitFailed,
			fmt.Sprintf("Failed to commit transaction for %s", operation),
			err,
		).WithDetails("The transaction was endorsed but could not be committed. There may have been a concurrent update.")
	}

	if strings.Contains(errLower, "permission denied") ||
		strings.Contains(errLower, "access denied") {
		return NewAppError(
			ErrCodePermissionDenied,
			"Permission denied",
			err,
		).WithDetails("You do not have permission to perform this operation on the blockchain.")
	}

	if strings.Contains(errLower, "certificate") ||
		strings.Contains(errLower, "tls") {
		return NewAppError(
			ErrCodeCertificateError,
			"Certificate error",
			err,
		).WithDetails("There was an error with the blockchain credentials. Please check the certificate configuration.")
	}

	return NewAppError(
		ErrCodeTransactionFailed,
		fmt.Sprintf("Blockchain transaction failed: %s", operation),
		err,
	).WithDetails("The blockchain operation failed. Please try again or contact support if the issue persists.")
}

func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()

	msg = sanitizeFilePaths(msg)

	msg = sanitizeInternalAddresses(msg)

	if strings.Contains(msg, "certificate") {
		msg = "Certificate error occurred"
	}

	return msg
}

func sanitizeFilePaths(msg string) string {
	patterns := []string{
		"/home/", "/var/", "/usr/", "/opt/", "/tmp/", "/root/",
		"C:\\", "D:\\", "/Users/",
	}

	for _, pattern := range patterns {
		if idx := strings.Index(msg, pattern); idx != -1 {
			end := idx
			for end < len(msg) && msg[end] != ' ' && msg[end] != ':' && msg[end] != '\n' {
				end++
			}
			msg = msg[:idx] + "[path]" + msg[end:]
		}
	}

	return msg
}

func sanitizeInternalAddresses(msg string) string {
	msg = strings.ReplaceAll(msg, "127.0.0.1", "[ledger-host]")
	msg = strings.ReplaceAll(msg, "localhost", "[ledger-host]")
	return msg
}

func NewNotFoundError(resource string, id string) *AppError {
	return NewAppError(
		ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource),
		errors.New("resource not found"),
	).WithContext("resource", resource).WithContext("id", id)
}

func NewValidationError(message string) *AppError {
	return NewAppError(
		ErrCodeValidationFailed,
		message,
		errors.New("validation failed"),
	)
}
