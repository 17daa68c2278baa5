// Package models holds the self-service account types exchanged with the
// cloud directory management API.
package models

import (
	"fmt"
	"net/http"
)

// Email is a SCIM email attribute.
type Email struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary,omitempty"`
}

// PhoneNumber is a SCIM phone number attribute.
type PhoneNumber struct {
	Value string `json:"value"`
}

// Name is the SCIM name attribute.
type Name struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

// UserRecord is the SCIM-shaped sign-up payload. It is built from
// untrusted form input and lives only for the duration of one call.
type UserRecord struct {
	Emails            []Email       `json:"emails"`
	PhoneNumbers      []PhoneNumber `json:"phoneNumbers,omitempty"`
	Name              *Name         `json:"name,omitempty"`
	Locale            string        `json:"locale,omitempty"`
	Password          string        `json:"password"`
	ConfirmedPassword string        `json:"confirmed_password"`
}

// PrimaryEmail returns the first email, which the directory treats as primary.
func (u UserRecord) PrimaryEmail() string {
	if len(u.Emails) == 0 {
		return ""
	}
	return u.Emails[0].Value
}

// SignUpForm is the flat form shape posted by the web and mobile sign-up
// pages.
type SignUpForm struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmedPassword string `json:"confirmed_password"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	PhoneNumber       string `json:"phoneNumber"`
	Language          string `json:"language"`
}

// UserRecord converts the form into the SCIM payload. Optional attributes
// are only set when the form carried them.
func (f SignUpForm) UserRecord() UserRecord {
	rec := UserRecord{
		Password:          f.Password,
		ConfirmedPassword: f.ConfirmedPassword,
		Locale:            f.Language,
	}
	if f.Email != "" {
		rec.Emails = []Email{{Value: f.Email, Primary: true}}
	}
	if f.PhoneNumber != "" {
		rec.PhoneNumbers = []PhoneNumber{{Value: f.PhoneNumber}}
	}
	if f.FirstName != "" || f.LastName != "" {
		rec.Name = &Name{GivenName: f.FirstName, FamilyName: f.LastName}
	}
	return rec
}

// Profile is the public view of a directory user returned on success.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// ErrorKind classifies an OperationError for the caller.
type ErrorKind string

const (
	// KindClientInput covers 4xx responses and local validation failures.
	// The message is safe to show.
	KindClientInput ErrorKind = "client_input"
	// KindServer covers 5xx responses and transport failures. Only a
	// generic message may be shown.
	KindServer ErrorKind = "server"
)

// Localization keys for errors detected before calling the directory.
const (
	KeyPasswordMismatch = "PASSWORDS_DO_NOT_MATCH"
	KeyMissingEmail     = "MISSING_EMAIL"
	KeyInvalidEmail     = "INVALID_EMAIL"
)

// OperationError is the failure result of an account operation.
type OperationError struct {
	// Code is HTTP-status shaped.
	Code    int
	Message string
	Kind    ErrorKind
	// Key overrides the localization key; when empty the code is used.
	Key string
	Err error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("account %s error %d: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("account %s error %d: %s", e.Kind, e.Code, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsClientInput reports whether the code is in the 4xx range, including
// conflicts.
func (e *OperationError) IsClientInput() bool {
	return e.Kind == KindClientInput
}

// IsConflict reports a 409. Resend treats it as an already confirmed
// account; everywhere else it is ordinary client input.
func (e *OperationError) IsConflict() bool {
	return e.Code == http.StatusConflict
}

// MessageKey is the key used to resolve a localized message.
func (e *OperationError) MessageKey() string {
	if e.Key != "" {
		return e.Key
	}
	return fmt.Sprintf("%d", e.Code)
}

// KindForStatus maps an HTTP status to its error kind by range.
func KindForStatus(status int) ErrorKind {
	switch {
	case status >= 400 && status < 500:
		return KindClientInput
	default:
		return KindServer
	}
}

// NewOperationError builds an error classified by status.
func NewOperationError(status int, message string, err error) *OperationError {
	return &OperationError{
		Code:    status,
		Message: message,
		Kind:    KindForStatus(status),
		Err:     err,
	}
}

// InputError is a local validation failure detected before any network call.
func InputError(key, message string) *OperationError {
	return &OperationError{
		Code:    http.StatusBadRequest,
		Message: message,
		Kind:    KindClientInput,
		Key:     key,
	}
}

// ResendOutcome is the message key reported by ResendNotification.
type ResendOutcome string

const (
	ResendSent      ResendOutcome = "sent"
	ResendConfirmed ResendOutcome = "confirmed"
	ResendTryLater  ResendOutcome = "tryLater"
)

func (o ResendOutcome) String() string { return string(o) }
