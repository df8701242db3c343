// Package identity derives the one-way subject hash used as the storage key
// for account reputation. Raw account numbers never leave this package except
// in masked form.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
)

const (
	accountNumberLen = 10
	bankCodeLen      = 3
)

// Account is a raw bank account identifier as supplied by a caller.
type Account struct {
	Number   string
	BankCode string
}

// Normalize trims the fields and enforces the NUBAN shape: a 10 digit
// account number and, when given, a 3 digit bank code.
func (a Account) Normalize() (Account, error) {
	n := Account{
		Number:   strings.TrimSpace(a.Number),
		BankCode: strings.TrimSpace(a.BankCode),
	}
	if len(n.Number) != accountNumberLen || !allDigits(n.Number) {
		return Account{}, dErrors.New(dErrors.CodeValidation, "account number must be exactly 10 digits")
	}
	if n.BankCode != "" && (len(n.BankCode) != bankCodeLen || !allDigits(n.BankCode)) {
		return Account{}, dErrors.New(dErrors.CodeValidation, "bank code must be exactly 3 digits")
	}
	return n, nil
}

// Hash validates raw and returns the hex SHA-256 of the normalized account
// number. The same input always yields the same hash.
func Hash(raw string) (domain.SubjectHash, error) {
	acct, err := Account{Number: raw}.Normalize()
	if err != nil {
		return "", err
	}
	return digest(acct.Number), nil
}

// HashAccount is Hash for a full Account; the bank code is validated but does
// not contribute to the key.
func HashAccount(a Account) (domain.SubjectHash, Account, error) {
	acct, err := a.Normalize()
	if err != nil {
		return "", Account{}, err
	}
	return digest(acct.Number), acct, nil
}

// Mask renders an account number for logs, keeping the first four characters.
func Mask(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= 4 {
		return strings.Repeat("*", len(raw))
	}
	return raw[:4] + strings.Repeat("*", len(raw)-4)
}

func digest(s string) domain.SubjectHash {
	sum := sha256.Sum256([]byte(s))
	return domain.SubjectHash(hex.EncodeToString(sum[:]))
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
