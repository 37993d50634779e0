// Package fault defines the error taxonomy shared by every scraping
// component. A single Error type carries a machine-readable Code so callers
// can branch on the failure class without matching message strings.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code int

const (
	// CodeUnknown marks errors that did not originate from this package.
	CodeUnknown Code = iota
	// CodeLogin covers authentication failures: rejected credentials,
	// missing post-login markers, unexpected challenge pages.
	CodeLogin
	// CodeExtraction covers structural failures while locating or reading
	// movement data, including runs where no record survives normalization.
	CodeExtraction
	// CodeScraperNotFound is reported for institution ids with no
	// registered driver.
	CodeScraperNotFound
	// CodeOutput covers serialization and file writing failures.
	CodeOutput
)

func (c Code) String() string {
	switch c {
	case CodeLogin:
		return "login"
	case CodeExtraction:
		return "extraction"
	case CodeScraperNotFound:
		return "scraper_not_found"
	case CodeOutput:
		return "output"
	}
	return "unknown"
}

// Error is the root error of the scraping pipeline.
type Error struct {
	Code    Code
	BankID  string
	Message string
	cause   error
}

func New(code Code, bankID, message string) *Error {
	return &Error{Code: code, BankID: bankID, Message: message}
}

func Newf(code Code, bankID, format string, args ...any) *Error {
	return &Error{Code: code, BankID: bankID, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil when err is nil so it
// can sit directly on a return statement.
func Wrap(code Code, bankID, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, BankID: bankID, Message: message, cause: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.BankID != "" {
		msg = e.BankID + ": " + msg
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf reports the classification of err, following wrapped chains.
// Errors produced outside this package report CodeUnknown.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeUnknown
}

// IsFault reports whether err (or anything it wraps) is a classified
// scraping failure.
func IsFault(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}
