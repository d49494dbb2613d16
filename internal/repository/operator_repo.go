package repository

import (
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

type Operator struct {
	ID           int
	Email        string
	PasswordHash string
}

type OperatorRepository interface {
	GetByEmail(email string) (*Operator, error)
	CreateOperator(email, password string) error
}

type operatorRepository struct {
	db *sql.DB
}

func NewOperatorRepository(db *sql.DB) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) GetByEmail(email string) (*Operator, error) {
	var op Operator
	err := r.db.QueryRow("SELECT id, email, password_hash FROM operators WHERE email = $1", email).
		Scan(&op.ID, &op.Email, &op.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

func (r *operatorRepository) CreateOperator(email, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = r.db.Exec("INSERT INTO operators (email, password_hash) VALUES ($1, $2)", email, hashed)
	return err
}
