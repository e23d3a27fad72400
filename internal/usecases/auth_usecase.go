package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"project_handoff/internal/entities"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminStore is the slice of the admin repository auth needs.
type AdminStore interface {
	GetByUsername(ctx context.Context, username string) (*entities.Admin, error)
	Create(ctx context.Context, admin *entities.Admin) error
}

type AuthUsecase struct {
	admins    AdminStore
	jwtSecret []byte
	ttl       time.Duration
}

func NewAuthUsecase(admins AdminStore, secret string, ttl time.Duration) *AuthUsecase {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthUsecase{
		admins:    admins,
		jwtSecret: []byte(secret),
		ttl:       ttl,
	}
}

func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (string, error) {
	admin, err := uc.admins.GetByUsername(ctx, username)
	if err != nil {
		return "", &entities.PersistenceError{Op: "load_admin", Err: err}
	}
	if admin == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return uc.IssueToken(admin.Username, admin.Role)
}

// IssueToken signs an HS256 token whose subject is the admin id used in
// ownership records.
func (uc *AuthUsecase) IssueToken(adminID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  adminID,
		"role": role,
		"exp":  time.Now().Add(uc.ttl).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ParseToken validates a bearer token and returns its admin id.
func (uc *AuthUsecase) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return uc.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", entities.ErrUnauthorized
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", entities.ErrUnauthorized
	}
	return sub, nil
}

// EnsureAdmin creates the bootstrap admin if it does not exist yet.
func (uc *AuthUsecase) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	existing, err := uc.admins.GetByUsername(ctx, username)
	if err != nil {
		return &entities.PersistenceError{Op: "load_admin", Err: err}
	}
	if existing != nil {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return uc.admins.Create(ctx, &entities.Admin{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         "admin",
	})
}
