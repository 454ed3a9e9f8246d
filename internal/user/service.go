package user

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

type Service struct {
	repo      Repository
	jwtSecret []byte
}

type authClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{repo: repo, jwtSecret: []byte(jwtSecret)}
}

func (s *Service) SignUp(ctx context.Context, req *SignUpRequest) (*User, error) {
	if err := ValidateSignUp(req); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, &User{
		Name:     req.Name,
		Username: req.Username,
		Password: string(hashed),
	})
}

func (s *Service) SignIn(ctx context.Context, req *SignInRequest) (*AuthResponse, error) {
	u, err := s.repo.ByUsername(ctx, req.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, authClaims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			Issuer:    "dmchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{AccessToken: signed, User: u}, nil
}

// VerifyToken returns the user ID a valid token names.
func (s *Service) VerifyToken(tokenString string) (int64, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: bad token", ErrInvalidCredentials)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidCredentials)
	}
	return id, nil
}

func (s *Service) ByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.ByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, query string, excludeID int64) ([]User, error) {
	return s.repo.Search(ctx, query, excludeID)
}

func (s *Service) UpdatePicture(ctx context.Context, id int64, picture string) error {
	return s.repo.UpdatePicture(ctx, id, picture)
}
