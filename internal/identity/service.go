// Package identity handles registration, login, password changes, and the
// admin-only user management operations. Accounts are deactivated, never
// removed.
package identity

import (
	"strings"
	"time"

	"docvault/internal/authz"
	"docvault/internal/util"
	"docvault/pkg/apperr"
	"docvault/pkg/domain"
	"docvault/pkg/password"
	"docvault/pkg/store"
)

const minPasswordLength = 8

// Service owns user accounts.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// RegisterInput carries a public self-registration.
type RegisterInput struct {
	Email      string
	Password   string
	Department string
	Phone      string
}

func validateCredentials(email, pw string) error {
	var problems []apperr.FieldProblem
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		problems = append(problems, apperr.FieldProblem{Field: "email", Problem: "must be a valid address"})
	}
	if len(pw) < minPasswordLength {
		problems = append(problems, apperr.FieldProblem{Field: "password", Problem: "must be at least 8 characters"})
	}
	if len(problems) > 0 {
		return apperr.ValidationFields("invalid credentials", problems...)
	}
	return nil
}

// Register creates a regular account. The role is always "user"; elevated
// accounts are created by an admin.
func (s *Service) Register(in RegisterInput) (domain.User, error) {
	if err := validateCredentials(in.Email, in.Password); err != nil {
		return domain.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	exists, err := s.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, apperr.Infrastructure(err, "user lookup failed")
	}
	if exists {
		return domain.User{}, apperr.Conflict("email %s is already registered", email)
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return domain.User{}, apperr.Infrastructure(err, "password hash failed")
	}
	now := time.Now().UTC()
	u := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Active:       true,
		Department:   in.Department,
		Phone:        in.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveUser(u); err != nil {
		if err == store.ErrDuplicate {
			return domain.User{}, apperr.Conflict("email %s is already registered", email)
		}
		return domain.User{}, apperr.Infrastructure(err, "user save failed")
	}
	return u, nil
}

// Login checks credentials and stamps the last login. Unknown emails and bad
// passwords report the same message; deactivated accounts are named as such.
func (s *Service) Login(email, pw string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, ok, err := s.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, apperr.Infrastructure(err, "user lookup failed")
	}
	if !ok {
		return domain.User{}, apperr.Authentication("invalid email or password")
	}
	match, err := password.Verify(pw, u.PasswordHash)
	if err != nil {
		return domain.User{}, apperr.Infrastructure(err, "password verify failed")
	}
	if !match {
		return domain.User{}, apperr.Authentication("invalid email or password")
	}
	if !u.Active {
		return domain.User{}, apperr.Authentication("account is deactivated")
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	if err := s.store.SaveUser(u); err != nil {
		return domain.User{}, apperr.Infrastructure(err, "user save failed")
	}
	return u, nil
}

// Get returns one user.
func (s *Service) Get(id string) (domain.User, error) {
	u, ok, err := s.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, apperr.Infrastructure(err, "user lookup failed")
	}
	if !ok {
		return domain.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

// CreateInput carries an admin-created account.
type CreateInput struct {
	Email      string
	Password   string
	Role       domain.UserRole
	Department string
	Phone      string
}

var validRoles = map[domain.UserRole]bool{
	domain.RoleAdmin: true, domain.RoleManager: true, domain.RoleUser: true,
}

// AdminCreate creates an account with any role. Admin only.
func (s *Service) AdminCreate(actor domain.User, in CreateInput) (domain.User, error) {
	if err := authz.RequireRole(actor, domain.ActionUserCreate); err != nil {
		return domain.User{}, err
	}
	if in.Role != "" && !validRoles[in.Role] {
		return domain.User{}, apperr.ValidationFields("invalid user",
			apperr.FieldProblem{Field: "role", Problem: "unknown role"})
	}
	u, err := s.Register(RegisterInput{
		Email:      in.Email,
		Password:   in.Password,
		Department: in.Department,
		Phone:      in.Phone,
	})
	if err != nil {
		return domain.User{}, err
	}
	if in.Role != "" && in.Role != domain.RoleUser {
		u.Role = in.Role
		u.UpdatedAt = time.Now().UTC()
		if err := s.store.SaveUser(u); err != nil {
			return domain.User{}, apperr.Infrastructure(err, "user save failed")
		}
	}
	return u, nil
}

// UpdateInput carries the admin-settable fields of an account.
type UpdateInput struct {
	Role       *domain.UserRole
	Active     *bool
	Department *string
	Phone      *string
}

// AdminUpdate changes role, active flag, or profile fields. Admin only.
func (s *Service) AdminUpdate(actor domain.User, id string, in UpdateInput) (domain.User, error) {
	if err := authz.RequireRole(actor, domain.ActionUserUpdate); err != nil {
		return domain.User{}, err
	}
	u, err := s.Get(id)
	if err != nil {
		return domain.User{}, err
	}
	if in.Role != nil {
		if !validRoles[*in.Role] {
			return domain.User{}, apperr.ValidationFields("invalid user",
				apperr.FieldProblem{Field: "role", Problem: "unknown role"})
		}
		u.Role = *in.Role
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if in.Department != nil {
		u.Department = *in.Department
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	u.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveUser(u); err != nil {
		return domain.User{}, apperr.Infrastructure(err, "user save failed")
	}
	return u, nil
}

// ChangePassword replaces the actor's own password after checking the
// current one.
func (s *Service) ChangePassword(actor domain.User, current, next string) error {
	if len(next) < minPasswordLength {
		return apperr.ValidationFields("invalid password",
			apperr.FieldProblem{Field: "newPassword", Problem: "must be at least 8 characters"})
	}
	u, err := s.Get(actor.ID)
	if err != nil {
		return err
	}
	match, err := password.Verify(current, u.PasswordHash)
	if err != nil {
		return apperr.Infrastructure(err, "password verify failed")
	}
	if !match {
		return apperr.Authentication("current password is incorrect")
	}
	hash, err := password.Hash(next)
	if err != nil {
		return apperr.Infrastructure(err, "password hash failed")
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveUser(u); err != nil {
		return apperr.Infrastructure(err, "user save failed")
	}
	return nil
}

// List returns all accounts. Admin only.
func (s *Service) List(actor domain.User) ([]domain.User, error) {
	if err := authz.RequireRole(actor, domain.ActionUserUpdate); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, apperr.Infrastructure(err, "user list failed")
	}
	return users, nil
}
