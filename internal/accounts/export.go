package accounts

import "github.com/cleared-dev/ledger/internal/model"

var typeCategory = map[model.AccountType]string{
	model.AccountTypeAsset:     "Asset",
	model.AccountTypeLiability: "Liabilities",
	model.AccountTypeEquity:    "Equity",
	model.AccountTypeRevenue:   "Revenue",
	model.AccountTypeExpense:   "Expense",
}

// ExportRecords converts accounts back into feed records. Parents are
// emitted by code and by name, so re-importing the output reproduces the
// hierarchy.
func ExportRecords(accounts []model.Account) []model.ImportRecord {
	byID := make(map[string]model.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	records := make([]model.ImportRecord, 0, len(accounts))
	for i, a := range accounts {
		rec := model.ImportRecord{
			Row:               i + 1,
			Code:              a.Code,
			Name:              a.Name,
			Category:          typeCategory[a.Type],
			CashFlowRelevance: a.Description,
		}
		if parent, ok := byID[a.ParentID]; ok {
			rec.Subcategory = parent.Name
			rec.ParentCode = parent.Code
		}
		records = append(records, rec)
	}
	return records
}
