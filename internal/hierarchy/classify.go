package hierarchy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// ErrUnknownCategory is returned in strict mode for a category with no mapping.
var ErrUnknownCategory = errors.New("unknown account category")

var defaultCategories = map[string]model.AccountType{
	"asset":       model.AccountTypeAsset,
	"assets":      model.AccountTypeAsset,
	"aset":        model.AccountTypeAsset,
	"aktiva":      model.AccountTypeAsset,
	"liability":   model.AccountTypeLiability,
	"liabilities": model.AccountTypeLiability,
	"kewajiban":   model.AccountTypeLiability,
	"liabilitas":  model.AccountTypeLiability,
	"utang":       model.AccountTypeLiability,
	"equity":      model.AccountTypeEquity,
	"ekuitas":     model.AccountTypeEquity,
	"modal":       model.AccountTypeEquity,
	"revenue":     model.AccountTypeRevenue,
	"income":      model.AccountTypeRevenue,
	"pendapatan":  model.AccountTypeRevenue,
	"expense":     model.AccountTypeExpense,
	"expenses":    model.AccountTypeExpense,
	"beban":       model.AccountTypeExpense,
	"biaya":       model.AccountTypeExpense,
}

// Classifier maps free-text feed categories to account types.
type Classifier struct {
	table  map[string]model.AccountType
	strict bool
}

// NewClassifier returns a Classifier with the built-in table extended by
// aliases (category -> account type). In strict mode unrecognized categories
// are errors instead of falling back to asset.
func NewClassifier(aliases map[string]string, strict bool) (*Classifier, error) {
	table := make(map[string]model.AccountType, len(defaultCategories)+len(aliases))
	for k, v := range defaultCategories {
		table[k] = v
	}
	for category, typ := range aliases {
		t := model.AccountType(normalize(typ))
		if !t.Valid() {
			return nil, fmt.Errorf("category alias %q: unknown account type %q", category, typ)
		}
		table[normalize(category)] = t
	}
	return &Classifier{table: table, strict: strict}, nil
}

// Classify returns the account type for category. known is false when the
// asset fallback was applied.
func (c *Classifier) Classify(category string) (typ model.AccountType, known bool, err error) {
	if t, ok := c.table[normalize(category)]; ok {
		return t, true, nil
	}
	if c.strict {
		return "", false, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return model.AccountTypeAsset, false, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
