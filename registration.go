package auth

import (
	"context"

	"github.com/google/uuid"
)

// Register creates or links an identity in the context tenant and opens a
// session.
//
// A non default role needs an unused invitation code, consumed up front.
// The identity is looked up by email, then by username:
//   - no match creates it together with the membership
//   - a username match with a different email is a Conflict
//   - a soft-deleted match is restored with the new password
//   - an active match must prove ownership with its password, else Conflict
//
// A role already held in the tenant makes the call behave as a login,
// otherwise the membership is added.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (res *AuthResult, err error) {
	var userID uuid.UUID
	tenantID, _ := TenantFromContext(ctx)
	defer func() { s.track(ctx, ActivityRegister, userID, tenantID, err) }()

	if tenantID, err = requireTenant(ctx); err != nil {
		return nil, err
	}

	if verr := req.Validate(); verr != nil {
		return nil, NewValidationError(verr)
	}

	role := NormalizeRole(req.Role)
	email := NormalizeEmail(req.Email)

	if !IsDefaultRole(role) && !s.invites.Consume(ctx, req.InvitationCode) {
		return nil, ErrInvitationInvalid
	}

	user, match, err := s.resolver.FindForRegistration(ctx, req.Username, email)
	if err != nil {
		s.logger.Error("registration lookup failed", "error", err)
		return nil, err
	}

	var outcome string
	switch {
	case match == MatchNone:
		if user, err = s.createIdentity(ctx, req.Username, email, req.Password, tenantID, role); err != nil {
			return nil, err
		}
		outcome = OutcomeCreated

	case match == MatchByUsername && user.Email != email:
		s.logger.Info("registration username taken by another email", "user_id", user.ID)
		return nil, ErrIdentityConflict

	case user.IsDeleted():
		if user, err = s.restoreIdentity(ctx, user.ID, req.Password); err != nil {
			return nil, err
		}
		outcome = OutcomeRestored

	default:
		if perr := s.verifyPassword(ctx, req.Password, user.PasswordHash); perr != nil {
			if IsUnauthorized(perr) {
				s.logger.Info("registration ownership check failed", "user_id", user.ID)
				return nil, ErrIdentityConflict
			}
			return nil, perr
		}
		outcome = OutcomeLinked
	}
	userID = user.ID

	if outcome != OutcomeCreated {
		if outcome, err = s.ensureMembership(ctx, user.ID, tenantID, role, outcome); err != nil {
			return nil, err
		}
	}

	res, err = s.openSession(ctx, user, tenantID, role)
	if err != nil {
		return nil, err
	}
	res.Outcome = outcome

	s.logger.Info("registration completed", "user_id", user.ID, "tenant_id", tenantID, "role", role, "outcome", outcome)
	return res, nil
}

// ensureMembership adds role for an existing identity. When the role is
// already held a linked registration is reported as a login.
func (s *Service) ensureMembership(ctx context.Context, userID, tenantID uuid.UUID, role, outcome string) (string, error) {
	held, err := s.holdsRole(ctx, userID, tenantID, role)
	if err != nil {
		return "", err
	}

	if held {
		if outcome == OutcomeLinked {
			return OutcomeLoggedIn, nil
		}
		return outcome, nil
	}

	if _, err := s.resolver.AddMembership(ctx, userID, tenantID, role); err != nil {
		s.logger.Error("membership create failed", "user_id", userID, "error", err)
		return "", err
	}
	return outcome, nil
}

func (s *Service) createIdentity(ctx context.Context, username, email, password string, tenantID uuid.UUID, role string) (*User, error) {
	hash, err := s.pool.Hash(ctx, s.hasher, password)
	if err != nil {
		return nil, err
	}

	user, err := s.resolver.CreateMember(ctx, &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}, tenantID, role)
	if err != nil {
		if IsDuplicateRecord(err) {
			// lost a concurrent registration race
			return nil, ErrIdentityConflict
		}
		s.logger.Error("identity create failed", "error", err)
		return nil, err
	}
	return user, nil
}

func (s *Service) restoreIdentity(ctx context.Context, id uuid.UUID, password string) (*User, error) {
	hash, err := s.pool.Hash(ctx, s.hasher, password)
	if err != nil {
		return nil, err
	}

	user, err := s.resolver.RestoreUser(ctx, id, hash)
	if err != nil {
		if IsDuplicateRecord(err) {
			return nil, ErrIdentityConflict
		}
		s.logger.Error("identity restore failed", "user_id", id, "error", err)
		return nil, err
	}

	s.logger.Info("identity restored", "user_id", id)
	return user, nil
}

// holdsRole checks the full membership list so role additions across
// tenants are visible in one read.
func (s *Service) holdsRole(ctx context.Context, userID, tenantID uuid.UUID, role string) (bool, error) {
	memberships, err := s.resolver.AllMemberships(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.TenantID == tenantID && m.Role == role {
			return true, nil
		}
	}
	return false, nil
}
