// Package service implements the self-service account lifecycle: sign-up,
// forgot-password and notification resend. It holds no state; every call
// is one request to the directory.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/asaskevich/govalidator"

	"cloudgate/internal/account/models"
	"cloudgate/internal/platform/metrics"
	"cloudgate/pkg/email"
	"cloudgate/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Directory

// Directory is the management API.
type Directory interface {
	SignUp(ctx context.Context, record models.UserRecord, language string) (*models.Profile, error)
	ForgotPassword(ctx context.Context, email, language string) (*models.Profile, error)
	ResendNotification(ctx context.Context, uuid, templateName, language string) error
}

// Service is the account lifecycle service.
type Service struct {
	directory Directory
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs the service.
func New(directory Directory, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{directory: directory, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp creates a directory user. The record is checked locally first so
// mismatched passwords and missing emails never reach the network.
func (s *Service) SignUp(ctx context.Context, record models.UserRecord, language string) (*models.Profile, error) {
	if err := validateSignUp(record); err != nil {
		s.metrics.IncAccountOperation("sign_up", "invalid_input")
		s.logger.DebugContext(ctx, "sign up rejected before submission",
			"reason", err.Key,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	profile, err := s.directory.SignUp(ctx, record, language)
	if err != nil {
		return nil, s.operationFailure(ctx, "sign_up", err)
	}
	if profile.DisplayName == "" {
		profile.DisplayName = displayName(record, profile.Email)
	}
	if profile.Email == "" {
		profile.Email = record.PrimaryEmail()
	}

	s.metrics.IncAccountOperation("sign_up", "created")
	s.logger.InfoContext(ctx, "user signed up",
		"user_id", profile.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return profile, nil
}

// ForgotPassword triggers the reset notification. The reset itself happens
// out of band.
func (s *Service) ForgotPassword(ctx context.Context, address, language string) (*models.Profile, error) {
	address = strings.TrimSpace(address)
	if err := validateEmail(address); err != nil {
		s.metrics.IncAccountOperation("forgot_password", "invalid_input")
		return nil, err
	}

	profile, err := s.directory.ForgotPassword(ctx, address, language)
	if err != nil {
		return nil, s.operationFailure(ctx, "forgot_password", err)
	}
	if profile.Email == "" {
		profile.Email = address
	}
	if profile.DisplayName == "" {
		profile.DisplayName = email.DisplayName(address)
	}

	s.metrics.IncAccountOperation("forgot_password", "accepted")
	s.logger.InfoContext(ctx, "password reset requested",
		"user_id", profile.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return profile, nil
}

// ResendNotification re-sends a pending notification. It never fails from
// the caller's point of view; the outcome only selects which message to
// show, so callers cannot discover which accounts exist.
func (s *Service) ResendNotification(ctx context.Context, uuid, templateName, language string) models.ResendOutcome {
	if uuid == "" || templateName == "" {
		s.metrics.IncAccountOperation("resend_notification", models.ResendTryLater.String())
		s.logger.ErrorContext(ctx, "resend notification missing uuid or template",
			"template", templateName,
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.ResendTryLater
	}

	err := s.directory.ResendNotification(ctx, uuid, templateName, language)
	outcome := models.ResendSent
	if err != nil {
		var opErr *models.OperationError
		if errors.As(err, &opErr) && opErr.IsConflict() {
			outcome = models.ResendConfirmed
			s.logger.DebugContext(ctx, "resend notification for confirmed account",
				"message", opErr.Message,
				"request_id", requestcontext.RequestID(ctx),
			)
		} else {
			outcome = models.ResendTryLater
			s.logger.ErrorContext(ctx, "resend notification failed",
				"error", err,
				"template", templateName,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	s.metrics.IncAccountOperation("resend_notification", outcome.String())
	return outcome
}

// operationFailure normalizes a directory error and logs it at a level
// matching its class.
func (s *Service) operationFailure(ctx context.Context, operation string, err error) *models.OperationError {
	var opErr *models.OperationError
	if !errors.As(err, &opErr) {
		opErr = models.NewOperationError(500, "account operation failed", err)
	}

	if opErr.IsClientInput() {
		s.metrics.IncAccountOperation(operation, "rejected")
		s.logger.DebugContext(ctx, "account operation rejected",
			"operation", operation,
			"status", opErr.Code,
			"message", opErr.Message,
			"request_id", requestcontext.RequestID(ctx),
		)
		return opErr
	}
	s.metrics.IncAccountOperation(operation, "error")
	s.logger.ErrorContext(ctx, "account operation failed",
		"operation", operation,
		"status", opErr.Code,
		"error", opErr,
		"request_id", requestcontext.RequestID(ctx),
	)
	return opErr
}

func validateSignUp(record models.UserRecord) *models.OperationError {
	if record.Password != record.ConfirmedPassword {
		return models.InputError(models.KeyPasswordMismatch, "password and confirmed password do not match")
	}
	return validateEmail(record.PrimaryEmail())
}

func validateEmail(address string) *models.OperationError {
	if address == "" {
		return models.InputError(models.KeyMissingEmail, "email is required")
	}
	if !govalidator.IsEmail(address) {
		return models.InputError(models.KeyInvalidEmail, "email is not valid")
	}
	return nil
}

func displayName(record models.UserRecord, fallbackEmail string) string {
	if record.Name != nil {
		if n := strings.TrimSpace(record.Name.GivenName + " " + record.Name.FamilyName); n != "" {
			return n
		}
	}
	if addr := record.PrimaryEmail(); addr != "" {
		return email.DisplayName(addr)
	}
	return email.DisplayName(fallbackEmail)
}
