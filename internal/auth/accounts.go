package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/repository"
)

const minPasswordLen = 8

// Accounts handles password logins. Credentials live in the auth store,
// profiles in the primary store; both share the same id.
type Accounts struct {
	profiles *repository.ProfileRepository
	accounts *repository.AccountRepository
	tokens   *JWTManager
	logger   *slog.Logger
	cost     int
}

func NewAccounts(appCtx *app.AppContext, tokens *JWTManager) *Accounts {
	return &Accounts{
		profiles: repository.NewProfileRepository(appCtx.DB),
		accounts: repository.NewAccountRepository(appCtx.AuthDB),
		tokens:   tokens,
		logger:   appCtx.Logger,
		cost:     bcrypt.DefaultCost,
	}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (a *Accounts) SetHashCost(cost int) { a.cost = cost }

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Session is what a successful register or login hands back.
type Session struct {
	Token   string      `json:"token"`
	Profile *db.Profile `json:"profile"`
}

// Register creates the login account and its profile.
//
// Behavior:
//   - email must look like an address, password must be 8+ chars, name set.
//   - A taken email returns svcErr.ErrConflict.
//   - The account is written first; if the profile insert fails the account
//     is removed again so no orphan login remains.
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)

	var v svcErr.Validator
	v.Check(strings.Contains(in.Email, "@") && len(in.Email) <= 255, "email", "must be a valid email address")
	v.Check(len(in.Password) >= minPasswordLen, "password", "must be at least 8 characters")
	v.Check(in.Name != "" && len(in.Name) <= 128, "name", "is required")
	if err := v.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	if err := a.accounts.Create(ctx, &db.AuthAccount{ID: id, Email: in.Email, PasswordHash: string(hash)}); err != nil {
		return nil, err
	}

	profile := &db.Profile{ID: id, Name: in.Name, Email: in.Email, Role: db.RoleRegistered}
	if err := a.profiles.Create(ctx, profile); err != nil {
		if delErr := a.accounts.Delete(ctx, id); delErr != nil {
			a.logger.Error("failed to roll back account", "user_id", id, "err", delErr)
		}
		return nil, err
	}

	token, err := a.tokens.GenerateAccessToken(id, string(profile.Role))
	if err != nil {
		return nil, err
	}
	a.logger.Info("account registered", "user_id", id)
	return &Session{Token: token, Profile: profile}, nil
}

// Login checks credentials and issues an access token. Unknown email and
// wrong password are indistinguishable to the caller.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	acct, err := a.accounts.GetByEmail(ctx, email)
	if errors.Is(err, svcErr.ErrNotFound) {
		return nil, svcErr.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, svcErr.ErrUnauthorized
	}

	profile, err := a.profiles.GetByID(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if profile.IsBanned {
		return nil, svcErr.ErrBanned
	}

	if err := a.accounts.TouchLogin(ctx, acct.ID, time.Now().UTC()); err != nil {
		a.logger.Warn("failed to record login time", "user_id", acct.ID, "err", err)
	}

	token, err := a.tokens.GenerateAccessToken(acct.ID, string(profile.Role))
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Profile: profile}, nil
}
