package auth

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/tenant"
	"github.com/platinummonkey/andobill/pkg/throttle"
)

// UserLookup finds login candidates
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// CompanyLookup loads the company a user belongs to
type CompanyLookup interface {
	Get(ctx context.Context, id int64) (*tenant.Company, error)
}

// Authenticator verifies credentials behind the login throttle
type Authenticator struct {
	users     UserLookup
	companies CompanyLookup
	guard     *throttle.Guard
	logger    *observability.Logger
	// compared against for unknown emails so they cost a bcrypt round too
	dummyHash []byte
}

// NewAuthenticator creates an authenticator. cost must match the cost user
// passwords are hashed with (0 for the bcrypt default).
func NewAuthenticator(users UserLookup, companies CompanyLookup, guard *throttle.Guard, cost int, logger *observability.Logger) (*Authenticator, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("andobill-no-such-user"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hashing: %w", err)
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Authenticator{
		users:     users,
		companies: companies,
		guard:     guard,
		logger:    logger.WithField("component", "auth"),
		dummyHash: dummy,
	}, nil
}

// Attempt authenticates creds. It returns a *throttle.RateLimitedError when
// throttled, ErrInvalidCredentials, ErrAccountInactive or ErrCompanyInactive
// when rejected, and the user on success.
func (a *Authenticator) Attempt(ctx context.Context, creds Credentials) (*User, error) {
	ctx, span := observability.Tracer().Start(ctx, "auth.Attempt")
	defer span.End()

	email := normalizeEmail(creds.Email)
	span.SetAttributes(attribute.String("auth.ip", creds.IPAddress))

	if err := a.guard.Check(ctx, email, creds.IPAddress); err != nil {
		span.SetAttributes(attribute.String("auth.outcome", "throttled"))
		return nil, err
	}

	attempt := throttle.Attempt{Email: email, IPAddress: creds.IPAddress, UserAgent: creds.UserAgent}

	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(creds.Password))
		return nil, a.fail(ctx, span, attempt, throttle.ReasonUnknownUser, ErrInvalidCredentials)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	uid := user.ID
	attempt.UserID = &uid

	if !user.IsActive() {
		return nil, a.fail(ctx, span, attempt, throttle.ReasonAccountInactive, ErrAccountInactive)
	}

	if user.CompanyID != nil {
		company, err := a.companies.Get(ctx, *user.CompanyID)
		switch {
		case errors.Is(err, tenant.ErrCompanyNotFound):
			return nil, a.fail(ctx, span, attempt, throttle.ReasonCompanyInactive, ErrCompanyInactive)
		case err != nil:
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		case !company.IsActive():
			return nil, a.fail(ctx, span, attempt, throttle.ReasonCompanyInactive, ErrCompanyInactive)
		}
	}

	ok, err := CheckPassword(user.PasswordHash, creds.Password)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !ok {
		return nil, a.fail(ctx, span, attempt, throttle.ReasonInvalidCredentials, ErrInvalidCredentials)
	}

	if err := a.guard.Succeeded(ctx, attempt); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.outcome", "success"), attribute.Int64("auth.user_id", user.ID))
	_ = audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLogin, &uid, email,
		audit.EventStatusSuccess, "login succeeded")
	return user, nil
}

func (a *Authenticator) fail(ctx context.Context, span trace.Span, attempt throttle.Attempt, reason string, result error) error {
	span.SetAttributes(attribute.String("auth.outcome", string(throttle.OutcomeFailure)), attribute.String("auth.reason", reason))

	attempt.FailureReason = reason
	if err := a.guard.Failed(ctx, attempt); err != nil {
		a.logger.WithError(err).Error("failed to record login failure")
		return err
	}
	a.logger.WithFields(map[string]interface{}{
		"email":  attempt.Email,
		"ip":     attempt.IPAddress,
		"reason": reason,
	}).Info("login failed")
	_ = audit.FromContext(ctx).LogAuthentication(ctx, audit.EventTypeAuthLoginFailed, attempt.UserID,
		attempt.Email, audit.EventStatusFailure, "login failed: "+reason)
	return result
}
