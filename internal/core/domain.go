package core

import (
	"errors"
	"strings"
	"time"
)

const (
	INR Currency = "INR"
	AED Currency = "AED"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Shopping      Category = "Shopping"
	Bills         Category = "Bills"
	Health        Category = "Health"
	Entertainment Category = "Entertainment"
	Others        Category = "Others"
)

// DateLayout is the stored form of expense dates: UTC, millisecond precision.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// MaxDescriptionLen bounds expense descriptions.
const MaxDescriptionLen = 200

type (
	Currency string
	Category string

	Expense struct {
		ID          string   `json:"id"`
		Amount      float64  `json:"amount"`
		Category    Category `json:"category"`
		Description string   `json:"description"`
		Date        string   `json:"date"` // DateLayout
		Currency    Currency `json:"currency"`
	}

	UserSettings struct {
		ID                 string   `json:"id"`
		Currency           Currency `json:"currency"`
		MonthlyBudget      float64  `json:"monthlyBudget"`
		CarryForward       bool     `json:"carryForward"`
		Onboarded          bool     `json:"onboarded"`
		ManualCarryForward float64  `json:"manualCarryForward"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrInvalidDate        = errors.New("invalid date")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrNegativeBudget     = errors.New("monthly budget cannot be negative")
)

// Currencies lists the supported currencies.
var Currencies = []Currency{INR, AED, USD, EUR}

// Categories lists the expense categories.
var Categories = []Category{Food, Transport, Shopping, Bills, Health, Entertainment, Others}

func (c Currency) Validate() error {
	for _, v := range Currencies {
		if c == v {
			return nil
		}
	}
	return ErrInvalidCurrency
}

func (c Category) Validate() error {
	for _, v := range Categories {
		if c == v {
			return nil
		}
	}
	return ErrInvalidCategory
}

// ParseDate accepts RFC 3339 timestamps and plain dates (2006-01-02) and
// returns the date in DateLayout.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return FormatDate(t), nil
		}
	}
	return "", ErrInvalidDate
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func (e Expense) Validate() error {
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if err := e.Category.Validate(); err != nil {
		return err
	}
	if err := e.Currency.Validate(); err != nil {
		return err
	}
	if len(e.Description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if e.Date != "" {
		if _, err := ParseDate(e.Date); err != nil {
			return err
		}
	}
	return nil
}

func (s UserSettings) Validate() error {
	if err := s.Currency.Validate(); err != nil {
		return err
	}
	if s.MonthlyBudget < 0 {
		return ErrNegativeBudget
	}
	return nil
}

func (e Expense) GetID() string { return e.ID }

func (e Expense) WithID(id string) Expense {
	e.ID = id
	return e
}

func (s UserSettings) GetID() string { return s.ID }

func (s UserSettings) WithID(id string) UserSettings {
	s.ID = id
	return s
}
