package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"parkcore/internal/repository"
)

type OperatorAuthService interface {
	Login(email, password string) (string, error)
	CreateOperator(email, password string) error
}

type operatorAuthService struct {
	repo   repository.OperatorRepository
	secret string
}

func NewOperatorAuthService(repo repository.OperatorRepository, jwtSecret string) OperatorAuthService {
	return &operatorAuthService{repo: repo, secret: jwtSecret}
}

func (s *operatorAuthService) Login(email, password string) (string, error) {
	op, err := s.repo.GetByEmail(email)
	if err != nil {
		return "", err
	}
	if op == nil {
		return "", errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}
	if s.secret == "" {
		return "", errors.New("JWT secret not configured")
	}

	claims := jwt.MapClaims{
		"operator_id": op.ID,
		"email":       op.Email,
		"exp":         time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

func (s *operatorAuthService) CreateOperator(email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password cannot be empty")
	}
	return s.repo.CreateOperator(email, password)
}
