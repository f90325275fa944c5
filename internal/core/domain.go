package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "Income"
	Expense TransactionType = "Expense"
)

type (
	TransactionType string

	// Transaction is a single income or expense record owned by one account.
	Transaction struct {
		ID          string          `json:"_id"`
		Owner       string          `json:"email"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"`
		Amount      Money           `json:"amount"`
		Date        time.Time       `json:"date"`
		Description string          `json:"description,omitempty"`
		Name        string          `json:"name,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	// TransactionInput is the payload accepted when creating a transaction.
	TransactionInput struct {
		Owner       string `json:"email"`
		Type        string `json:"type"`
		Category    string `json:"category"`
		Amount      Money  `json:"amount"`
		Date        string `json:"date"`
		Description string `json:"description"`
		Name        string `json:"name"`
	}

	// TransactionPatchInput is the payload accepted when updating a
	// transaction. Owner and creation time have no field here, so a client
	// can never overwrite them.
	TransactionPatchInput struct {
		Type        *string `json:"type"`
		Category    *string `json:"category"`
		Amount      *Money  `json:"amount"`
		Date        *string `json:"date"`
		Description *string `json:"description"`
		Name        *string `json:"name"`
	}

	// TransactionPatch is a validated TransactionPatchInput. Nil fields are
	// left untouched.
	TransactionPatch struct {
		Type        *TransactionType
		Category    *string
		Amount      *Money
		Date        *time.Time
		Description *string
		Name        *string
	}

	// Scope restricts a query to the records of a single owner. The zero
	// value is unscoped.
	Scope struct {
		Owner string
	}
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrStoreFailure    = errors.New("store failure")
	ErrScopeRequired   = errors.New("owner scope required")

	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyOwner    = errors.New("empty owner")
)

// StoreError marks err as a store failure while keeping it inspectable.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}

// ParseTransactionType accepts "income" and "expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense":
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	return string(t)
}

func (in TransactionInput) Validate() error {
	if strings.TrimSpace(in.Owner) == "" {
		return ErrEmptyOwner
	}
	if _, err := ParseTransactionType(in.Type); err != nil {
		return err
	}
	if _, err := ParseDate(in.Date); err != nil {
		return err
	}
	return nil
}

// Transaction builds the record to insert. The store assigns the ID.
func (in TransactionInput) Transaction(now time.Time) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	typ, _ := ParseTransactionType(in.Type)
	date, _ := ParseDate(in.Date)
	now = now.UTC()
	return Transaction{
		Owner:       strings.TrimSpace(in.Owner),
		Type:        typ,
		Category:    strings.TrimSpace(in.Category),
		Amount:      in.Amount,
		Date:        date,
		Description: in.Description,
		Name:        in.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Patch validates the input and normalizes type and date.
func (in TransactionPatchInput) Patch() (TransactionPatch, error) {
	p := TransactionPatch{
		Category:    in.Category,
		Amount:      in.Amount,
		Description: in.Description,
		Name:        in.Name,
	}
	if in.Category != nil {
		c := strings.TrimSpace(*in.Category)
		p.Category = &c
	}
	if in.Type != nil {
		typ, err := ParseTransactionType(*in.Type)
		if err != nil {
			return TransactionPatch{}, err
		}
		p.Type = &typ
	}
	if in.Date != nil {
		d, err := ParseDate(*in.Date)
		if err != nil {
			return TransactionPatch{}, err
		}
		p.Date = &d
	}
	return p, nil
}

// Apply writes the patch onto tx and refreshes UpdatedAt.
func (p TransactionPatch) Apply(tx *Transaction, updatedAt time.Time) {
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Date != nil {
		tx.Date = *p.Date
	}
	if p.Description != nil {
		tx.Description = *p.Description
	}
	if p.Name != nil {
		tx.Name = *p.Name
	}
	tx.UpdatedAt = updatedAt.UTC()
}

// OwnedBy is the scope restricted to owner.
func OwnedBy(owner string) Scope {
	return Scope{Owner: owner}
}

// Scoped reports whether the scope filters by owner.
func (s Scope) Scoped() bool {
	return s.Owner != ""
}

// Matches reports whether tx falls inside the scope.
func (s Scope) Matches(tx Transaction) bool {
	return !s.Scoped() || tx.Owner == s.Owner
}
