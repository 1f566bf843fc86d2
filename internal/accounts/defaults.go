package accounts

import "github.com/cleared-dev/ledger/internal/model"

// DefaultChart returns the starter chart of accounts as feed records, so it
// is loaded through the same import path as any external feed.
func DefaultChart() []model.ImportRecord {
	rows := []model.ImportRecord{
		{Code: "1000", Name: "Aset Lancar", Category: "Aset", CashFlowRelevance: "Operating"},
		{Code: "1100", Name: "Kas", Category: "Aset", Subcategory: "Aset Lancar", CashFlowRelevance: "Operating"},
		{Code: "1110", Name: "Kas di Tangan", Category: "Aset", Subcategory: "Kas", CashFlowRelevance: "Operating"},
		{Code: "1120", Name: "Kas di Bank", Category: "Aset", Subcategory: "Kas", CashFlowRelevance: "Operating"},
		{Code: "1200", Name: "Piutang Usaha", Category: "Aset", Subcategory: "Aset Lancar", CashFlowRelevance: "Operating"},
		{Code: "1300", Name: "Persediaan", Category: "Aset", Subcategory: "Aset Lancar", CashFlowRelevance: "Operating"},
		{Code: "1500", Name: "Aset Tetap", Category: "Aset", CashFlowRelevance: "Investing"},
		{Code: "1510", Name: "Peralatan", Category: "Aset", Subcategory: "Aset Tetap", CashFlowRelevance: "Investing"},
		{Code: "2000", Name: "Kewajiban Lancar", Category: "Liabilities", CashFlowRelevance: "Operating"},
		{Code: "2100", Name: "Utang Usaha", Category: "Liabilities", Subcategory: "Kewajiban Lancar", CashFlowRelevance: "Operating"},
		{Code: "2200", Name: "Utang Pajak", Category: "Liabilities", Subcategory: "Kewajiban Lancar", CashFlowRelevance: "Operating"},
		{Code: "2500", Name: "Utang Bank", Category: "Liabilities", CashFlowRelevance: "Financing"},
		{Code: "3000", Name: "Modal Pemilik", Category: "Equity", CashFlowRelevance: "Financing"},
		{Code: "3100", Name: "Laba Ditahan", Category: "Equity", Subcategory: "Modal Pemilik", CashFlowRelevance: "Financing"},
		{Code: "4000", Name: "Pendapatan Usaha", Category: "Revenue", CashFlowRelevance: "Operating"},
		{Code: "4100", Name: "Penjualan", Category: "Revenue", Subcategory: "Pendapatan Usaha", CashFlowRelevance: "Operating"},
		{Code: "4200", Name: "Pendapatan Jasa", Category: "Revenue", Subcategory: "Pendapatan Usaha", CashFlowRelevance: "Operating"},
		{Code: "5000", Name: "Beban Operasional", Category: "Expense", CashFlowRelevance: "Operating"},
		{Code: "5100", Name: "Harga Pokok Penjualan", Category: "Expense", Subcategory: "Beban Operasional", CashFlowRelevance: "Operating"},
		{Code: "5200", Name: "Beban Gaji", Category: "Expense", Subcategory: "Beban Operasional", CashFlowRelevance: "Operating"},
		{Code: "5300", Name: "Beban Sewa", Category: "Expense", Subcategory: "Beban Operasional", CashFlowRelevance: "Operating"},
		{Code: "5400", Name: "Beban Listrik dan Air", Category: "Expense", Subcategory: "Beban Operasional", CashFlowRelevance: "Operating"},
	}
	for i := range rows {
		rows[i].Row = i + 1
	}
	return rows
}
