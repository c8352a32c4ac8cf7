package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO date format used by data files and the HTTP API.
const DateLayout = "2006-01-02"

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

type (
	// TxType restricts a Filter to one side of the ledger. The zero value
	// means no restriction.
	TxType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is immutable once loaded. Amount is signed minor units:
	// positive is income, negative is expense.
	Transaction struct {
		ID          string `json:"id"`
		Date        Date   `json:"date"`
		Description string `json:"description"`
		Amount      int64  `json:"amount"`
		Category    string `json:"category"`
		Source      string `json:"source"`
		Currency    string `json:"currency"`
	}

	// FileInfo describes one data file offered by a source.
	FileInfo struct {
		Name              string `json:"name"`
		TransactionsCount int    `json:"transactions_count"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidTxType      = errors.New("invalid transaction type")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// ParseDate parses a YYYY-MM-DD string into a UTC date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty reports an unset optional date.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String returns the ISO representation, or "" for an unset date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Compare orders dates by calendar day.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseTxType accepts "", "income" or "expense".
func ParseTxType(s string) (TxType, error) {
	switch TxType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTxType, s)
}

// IsIncome reports amount > 0. Zero-amount transactions are neither income
// nor expense.
func (t Transaction) IsIncome() bool {
	return t.Amount > 0
}

// IsExpense reports amount < 0.
func (t Transaction) IsExpense() bool {
	return t.Amount < 0
}

// Is reports whether t belongs to the given side of the ledger.
func (t Transaction) Is(typ TxType) bool {
	switch typ {
	case Income:
		return t.IsIncome()
	case Expense:
		return t.IsExpense()
	}
	return true
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTransaction)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: missing date for %s", ErrInvalidTransaction, t.ID)
	}
	if len(t.Currency) != 3 {
		return fmt.Errorf("%w: currency %q for %s", ErrInvalidTransaction, t.Currency, t.ID)
	}
	return nil
}

// SplitByType partitions transactions into the income and expense subsets,
// preserving order. Zero-amount transactions land in neither.
func SplitByType(txs []Transaction) (income, expense []Transaction) {
	for _, t := range txs {
		switch {
		case t.IsIncome():
			income = append(income, t)
		case t.IsExpense():
			expense = append(expense, t)
		}
	}
	return income, expense
}

// UncategorizedLabel names transactions that carry no category.
const UncategorizedLabel = "Uncategorized"

// CategoryLabel returns t's category, or UncategorizedLabel when empty.
func (t Transaction) CategoryLabel() string {
	if strings.TrimSpace(t.Category) == "" {
		return UncategorizedLabel
	}
	return t.Category
}
