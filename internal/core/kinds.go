package core

import (
	"time"

	"fiscalflow/internal/entity"
)

// SettingsID is the id of the single settings record.
const SettingsID = "default"

// Entity kind and index names, as they appear in storage keys and change
// events.
const (
	SettingsKindName = "user-settings"
	ExpenseKindName  = "expense"
	ExpenseIndex     = "expenses"
)

// DefaultSettings is the state of a settings record never written before.
func DefaultSettings() UserSettings {
	return UserSettings{ID: SettingsID, Currency: INR}
}

// SettingsKind is the singleton user settings entity.
func SettingsKind() *entity.Kind[UserSettings] {
	return &entity.Kind[UserSettings]{
		Name:    SettingsKindName,
		Default: func(string) UserSettings { return DefaultSettings() },
	}
}

// ExpenseKind is the expense collection. Records read without a date get
// now() as their date; seeds populate an untouched collection.
func ExpenseKind(now func() time.Time, seeds []Expense) *entity.Kind[Expense] {
	if now == nil {
		now = time.Now
	}
	return &entity.Kind[Expense]{
		Name:  ExpenseKindName,
		Index: ExpenseIndex,
		Default: func(string) Expense {
			return Expense{Category: Food, Currency: INR}
		},
		Prepare: func(e Expense) Expense {
			if e.Date == "" {
				e.Date = FormatDate(now())
			}
			return e
		},
		Seeds: seeds,
	}
}
