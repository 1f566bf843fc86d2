package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
)

func TestClassify(t *testing.T) {
	c, err := NewClassifier(nil, false)
	require.NoError(t, err)

	tests := []struct {
		category string
		want     model.AccountType
	}{
		{"Asset", model.AccountTypeAsset},
		{" liabilities ", model.AccountTypeLiability},
		{"EQUITY", model.AccountTypeEquity},
		{"Revenue", model.AccountTypeRevenue},
		{"expense", model.AccountTypeExpense},
		{"Aset", model.AccountTypeAsset},
		{"Kewajiban", model.AccountTypeLiability},
		{"Ekuitas", model.AccountTypeEquity},
		{"Pendapatan", model.AccountTypeRevenue},
		{"Beban", model.AccountTypeExpense},
		{"Mystery", model.AccountTypeAsset},
		{"", model.AccountTypeAsset},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			typ, _, err := c.Classify(tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ)
		})
	}
}

func TestClassifierAliases(t *testing.T) {
	c, err := NewClassifier(map[string]string{"Harta": "asset", "Penghasilan Lain": "Revenue"}, true)
	require.NoError(t, err)

	typ, known, err := c.Classify("harta")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, model.AccountTypeAsset, typ)

	typ, _, err = c.Classify("PENGHASILAN LAIN")
	require.NoError(t, err)
	assert.Equal(t, model.AccountTypeRevenue, typ)

	_, _, err = c.Classify("Mystery")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestClassifierFallback(t *testing.T) {
	c, err := NewClassifier(nil, false)
	require.NoError(t, err)

	typ, known, err := c.Classify("Mystery")
	require.NoError(t, err)
	assert.False(t, known)
	assert.Equal(t, model.AccountTypeAsset, typ)
}

func TestClassifierRejectsBadAlias(t *testing.T) {
	_, err := NewClassifier(map[string]string{"Harta": "contra"}, false)
	assert.Error(t, err)
}
