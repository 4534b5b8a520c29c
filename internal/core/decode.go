package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
)

// DecodeError reports a request body that does not decode into a valid
// record. Field is empty when the body as a whole is malformed.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "invalid body: " + e.Reason
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// IsDecodeError reports whether err is a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

type fieldDecoder func(raw json.RawMessage) (any, error)

var expenseFields = map[string]fieldDecoder{
	"amount":      decodeAmount,
	"category":    decodeCategory,
	"description": decodeDescription,
	"date":        decodeDate,
	"currency":    decodeCurrency,
}

var settingsFields = map[string]fieldDecoder{
	"currency":           decodeCurrency,
	"monthlyBudget":      decodeBudget,
	"carryForward":       decodeBool,
	"onboarded":          decodeBool,
	"manualCarryForward": decodeNumber,
}

// DecodeNewExpense decodes the body of an expense creation. Amount and
// category are required; an empty currency is left for the caller to fill
// and an empty date is set when the record is read. Any id is ignored.
func DecodeNewExpense(r io.Reader) (Expense, error) {
	fields, err := decodeFields(r, expenseFields)
	if err != nil {
		return Expense{}, err
	}
	for _, name := range []string{"amount", "category"} {
		if _, ok := fields[name]; !ok {
			return Expense{}, &DecodeError{Field: name, Reason: "required"}
		}
	}

	var e Expense
	var ok bool
	if e.Amount, ok = fields["amount"].(float64); !ok {
		return Expense{}, &DecodeError{Field: "amount", Reason: "must be a number"}
	}
	if e.Category, ok = fields["category"].(Category); !ok {
		return Expense{}, &DecodeError{Field: "category", Reason: "must be a string"}
	}
	if v, present := fields["description"]; present {
		e.Description, _ = v.(string)
	}
	if v, present := fields["date"]; present {
		e.Date, _ = v.(string)
	}
	if v, present := fields["currency"]; present {
		e.Currency, _ = v.(Currency)
	}
	return e, nil
}

// DecodeExpensePatch decodes a partial expense update into the field set
// accepted by entity patches. Values are normalized (amount rounded to cents,
// date in DateLayout).
func DecodeExpensePatch(r io.Reader) (map[string]any, error) {
	return decodeFields(r, expenseFields)
}

// DecodeSettingsPatch decodes a partial settings update.
func DecodeSettingsPatch(r io.Reader) (map[string]any, error) {
	return decodeFields(r, settingsFields)
}

// decodeFields reads one JSON object and decodes every member with its
// decoder. Unknown members are rejected, "id" is dropped, and null counts as
// absent.
func decodeFields(r io.Reader, decoders map[string]fieldDecoder) (map[string]any, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DecodeError{Reason: "empty body"}
		}
		return nil, &DecodeError{Reason: "body must be a JSON object"}
	}
	if raw == nil {
		return nil, &DecodeError{Reason: "body must be a JSON object"}
	}
	if dec.More() {
		return nil, &DecodeError{Reason: "unexpected data after JSON object"}
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make(map[string]any, len(raw))
	for _, name := range names {
		if name == "id" {
			continue
		}
		decode, ok := decoders[name]
		if !ok {
			return nil, &DecodeError{Field: name, Reason: "unknown field"}
		}
		value := raw[name]
		if string(value) == "null" {
			continue
		}
		v, err := decode(value)
		if err != nil {
			return nil, &DecodeError{Field: name, Reason: err.Error()}
		}
		out[name] = v
	}
	return out, nil
}

// decodeAmount accepts a positive number, or a decimal string such as
// "12,50" as sent by form inputs.
func decodeAmount(raw json.RawMessage) (any, error) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		cents, err := ParseDecimalToCents(s)
		if err != nil {
			return nil, err
		}
		return FromCents(cents), nil
	}
	n, err := number(raw)
	if err != nil {
		return nil, err
	}
	amount := RoundAmount(n)
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return amount, nil
}

func decodeBudget(raw json.RawMessage) (any, error) {
	n, err := number(raw)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeBudget
	}
	return RoundAmount(n), nil
}

func decodeNumber(raw json.RawMessage) (any, error) {
	n, err := number(raw)
	if err != nil {
		return nil, err
	}
	return RoundAmount(n), nil
}

func number(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errors.New("must be a number")
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, errors.New("must be finite")
	}
	return n, nil
}

func decodeCategory(raw json.RawMessage) (any, error) {
	s, err := str(raw)
	if err != nil {
		return nil, err
	}
	c := Category(s)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeCurrency(raw json.RawMessage) (any, error) {
	s, err := str(raw)
	if err != nil {
		return nil, err
	}
	c := Currency(strings.ToUpper(s))
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeDescription(raw json.RawMessage) (any, error) {
	s, err := str(raw)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if len(s) > MaxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}
	return s, nil
}

func decodeDate(raw json.RawMessage) (any, error) {
	s, err := str(raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return ParseDate(s)
}

func decodeBool(raw json.RawMessage) (any, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.New("must be a boolean")
	}
	return b, nil
}

func str(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("must be a string")
	}
	return s, nil
}
