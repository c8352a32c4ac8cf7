package sources

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"findash/internal/core"
)

// RequiredColumns lists the header names every data file must carry.
var RequiredColumns = []string{"id", "date", "description", "amount", "category", "source", "currency"}

const idLength = 12

// ParseTable validates a header row plus data rows and converts them into
// transactions. Column order is free and header matching ignores case.
// A table with only a header is valid and empty.
func ParseTable(rows [][]string) ([]core.Transaction, error) {
	if len(rows) == 0 {
		return []core.Transaction{}, nil
	}
	header := rows[0]
	cols := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, name := range RequiredColumns {
		i := indexOf(header, name)
		if i == -1 {
			missing = append(missing, name)
			continue
		}
		cols[name] = i
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: missing required columns [%s]", ErrInvalidStructure, strings.Join(missing, ", "))
	}

	out := make([]core.Transaction, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		if blank(row) {
			continue
		}
		if len(row) < len(header) {
			return nil, fmt.Errorf("%w: line %d has %d of %d values", ErrDataIntegrity, line, len(row), len(header))
		}
		for i := range header {
			if strings.TrimSpace(row[i]) == "" {
				return nil, fmt.Errorf("%w: line %d has an empty %q", ErrDataIntegrity, line, header[i])
			}
		}
		t, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDataIntegrity, line, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseRow(row []string, cols map[string]int) (core.Transaction, error) {
	get := func(name string) string { return strings.TrimSpace(safeGet(row, cols[name])) }

	id := get("id")
	if !validID(id) {
		return core.Transaction{}, fmt.Errorf("id %q is not %d alphanumerics", id, idLength)
	}
	date, err := core.ParseDate(get("date"))
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseMinorUnits(get("amount"))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", get("amount"), err)
	}
	currency := get("currency")
	if len([]rune(currency)) != 3 {
		return core.Transaction{}, fmt.Errorf("currency %q is not a 3-letter code", currency)
	}
	return core.Transaction{
		ID:          id,
		Date:        date,
		Description: get("description"),
		Amount:      amount,
		Category:    get("category"),
		Source:      get("source"),
		Currency:    currency,
	}, nil
}

func validID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(v, "\ufeff")), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// SortBySize orders files by transaction count, largest first. Ties keep
// name order.
func SortBySize(files []core.FileInfo) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].TransactionsCount != files[j].TransactionsCount {
			return files[i].TransactionsCount > files[j].TransactionsCount
		}
		return files[i].Name < files[j].Name
	})
}
