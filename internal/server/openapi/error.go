package openapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ParsingError indicates that an error has occurred when parsing request parameters.
type ParsingError struct {
	Param string
	Err   error
}

func (e *ParsingError) Unwrap() error {
	return e.Err
}

func (e *ParsingError) Error() string {
	if e.Param == "" {
		return e.Err.Error()
	}
	return e.Param + ": " + e.Err.Error()
}

// RequiredError indicates that a required parameter is missing.
type RequiredError struct {
	Field string
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("required field '%s' is zero value.", e.Field)
}

// ErrorHandler defines the required method for handling errors.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error, result *ImplResponse)

// DefaultErrorHandler writes parameter errors as 400 with per-field
// details and otherwise the body the service chose. A service error with
// no body becomes a 500 carrying the error text.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error, result *ImplResponse) {
	code := http.StatusBadRequest

	var parsingErr *ParsingError
	if errors.As(err, &parsingErr) {
		details := map[string][]string{}
		if parsingErr.Param != "" {
			details[parsingErr.Param] = []string{parsingErr.Err.Error()}
		}
		_ = EncodeJSONResponse(w, code, ErrorBody{Error: "Invalid query parameters", Details: details})
		return
	}

	var requiredErr *RequiredError
	if errors.As(err, &requiredErr) {
		_ = EncodeJSONResponse(w, code, ErrorBody{Error: err.Error()})
		return
	}

	if result == nil || result.Body == nil {
		code = http.StatusInternalServerError
		if result != nil && result.Code != 0 {
			code = result.Code
		}
		_ = EncodeJSONResponse(w, code, ErrorBody{Error: "An unexpected error occurred.", Details: err.Error()})
		return
	}

	_ = EncodeJSONResponse(w, result.Code, result.Body)
}
