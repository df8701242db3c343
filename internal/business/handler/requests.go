package handler

import (
	"strings"

	dErrors "confirmit/pkg/domain-errors"
)

type RegisterRequest struct {
	Name          string            `json:"name"`
	Category      string            `json:"category"`
	Email         string            `json:"email"`
	Phone         string            `json:"phone"`
	Address       string            `json:"address"`
	AccountNumber string            `json:"account_number"`
	BankCode      string            `json:"bank_code"`
	AccountName   string            `json:"account_name"`
	Tier          int               `json:"tier"`
	Documents     map[string]string `json:"documents"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Category = strings.TrimSpace(r.Category)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
	r.BankCode = strings.TrimSpace(r.BankCode)
}

func (r *RegisterRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.AccountNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "account_number is required")
	}
	return nil
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Normalize() { r.Reason = strings.TrimSpace(r.Reason) }

type TrustScoreRequest struct {
	TrustScore *int `json:"trust_score"`
}

func (r *TrustScoreRequest) Validate() error {
	if r.TrustScore == nil {
		return dErrors.New(dErrors.CodeValidation, "trust_score is required")
	}
	return nil
}

type APIKeyRequest struct {
	Env string `json:"env"`
}

func (r *APIKeyRequest) Normalize() { r.Env = strings.ToLower(strings.TrimSpace(r.Env)) }
