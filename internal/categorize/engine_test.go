package categorize

import (
	"testing"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEngine_Categorize(t *testing.T) {
	e := Default()

	tests := []struct {
		name     string
		merchant string
		desc     string
		amount   string
		wantCat  string
		wantSub  string
	}{
		{"starbucks", "", "STARBUCKS STORE 123", "-4.50", "Food and Drink", "Restaurants"},
		{"grocery", "", "KROGER #442", "-82.10", "Food and Drink", "Groceries"},
		{"rideshare", "", "UBER TRIP HELP.UBER.COM", "-18.20", "Transportation", "Rideshare"},
		{"online shopping", "", "AMZN Mktp US", "-29.99", "Shopping", "Online"},
		{"pharmacy", "CVS", "CVS/PHARMACY #1234", "-12.00", "Healthcare", "Pharmacy"},
		{"streaming", "", "HULU", "-7.99", "Entertainment", "Streaming"},
		{"keyword without subcategory", "", "FOOD TRUCK", "-11.00", "Food and Drink", "General"},
		{"very large fallback", "", "XYZZY", "-1500", "Bills & Utilities", "Large Payment"},
		{"large fallback", "", "XYZZY", "-750", "Shopping", "Large Purchase"},
		{"small fallback", "", "XYZZY", "-3.25", "Food and Drink", "Coffee & Snacks"},
		{"uncategorized", "", "XYZZY", "-42", "General", "Uncategorized"},
		{"salary", "", "STARBUCKS PAYROLL", "2000", "Income", "Salary/Wages"},
		{"refund", "", "AMAZON REFUND", "12.50", "Income", "Interest/Refund"},
		{"deposit", "", "MOBILE DEPOSIT", "300", "Income", "Deposit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Categorize(tt.merchant, tt.desc, amt(tt.amount))
			assert.Equal(t, tt.wantCat, got.Category)
			assert.Equal(t, tt.wantSub, got.Subcategory)
		})
	}
}

func TestEngine_Confidence(t *testing.T) {
	e := Default()

	got := e.Categorize("", "STARBUCKS", amt("-4.50"))
	assert.Greater(t, got.Confidence, 0.0)

	income := e.Categorize("", "STARBUCKS", amt("2000"))
	assert.Equal(t, 0.9, income.Confidence)

	fallback := e.Categorize("", "XYZZY", amt("-3"))
	assert.Equal(t, 0.2, fallback.Confidence)

	none := e.Categorize("", "XYZZY", amt("-42"))
	assert.Equal(t, 0.0, none.Confidence)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
		text    string
		want    float64
	}{
		{"short keyword in long text", "bar", "joe's neighborhood bar and grill downtown", 0.93170731707},
		{"prefix and boundary", "bp", "bp", 1},
		{"no boundary", "bar", "crowbarx stuff that is long enough to matter here ok", 0.57692307692},
		{"empty text", "bar", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.keyword, tt.text), 1e-6)
		})
	}
}

func TestEngine_NormalizeMerchant(t *testing.T) {
	e := Default()

	assert.Equal(t, "Amazon", e.NormalizeMerchant("AMZN Mktp US*2K4"))
	assert.Equal(t, "Walmart", e.NormalizeMerchant("wal-mart #123"))
	assert.Equal(t, "ExxonMobil", e.NormalizeMerchant("EXXON 4455"))
	assert.Equal(t, "Joe's Diner", e.NormalizeMerchant("JOE'S DINER"))
	assert.Equal(t, "", e.NormalizeMerchant(""))
}

func TestEngine_ApplyAndSuggest(t *testing.T) {
	e := Default()

	tx := &domain.Transaction{Name: "SHELL OIL 5731", Amount: amt("-40"), Category: []string{"General"}}
	res, suggestions := e.Apply(tx)

	assert.Equal(t, []string{"Transportation"}, tx.Category)
	assert.Equal(t, []string{"Gas"}, tx.Subcategory)
	assert.Equal(t, res.Confidence, tx.Confidence)
	require.Len(t, suggestions, 1)
	assert.Equal(t, SuggestNew, suggestions[0].Type)
	assert.Equal(t, "Suggested category: Transportation > Gas", suggestions[0].Message)

	changed := e.Suggest("Shopping", Result{Category: "Transportation", Subcategory: "Gas"})
	require.Len(t, changed, 1)
	assert.Equal(t, SuggestChange, changed[0].Type)
	assert.Equal(t, `Consider changing from "Shopping" to "Transportation"`, changed[0].Message)

	assert.Empty(t, e.Suggest("Transportation", Result{Category: "Transportation"}))
}

func TestEngine_CategorizeReceipt(t *testing.T) {
	e := Default()

	tests := []struct {
		vendor string
		want   Label
	}{
		{"Trader's Farmers Market", Label{"Food and Drink", "Groceries"}},
		{"Blue Bottle Coffee", Label{"Food and Drink", "Restaurants"}},
		{"Chevron #2", Label{"Transportation", "Gas"}},
		{"Walgreens", Label{"Healthcare", "Pharmacy"}},
		{"Corner Shop", Label{"Shopping", "General Merchandise"}},
		{"Acme Widgets", Label{"General", "Uncategorized"}},
		{"", Label{"General", "Uncategorized"}},
	}
	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			assert.Equal(t, tt.want, e.CategorizeReceipt(tt.vendor))
		})
	}
}

func TestEngine_CategorizeLineItem(t *testing.T) {
	e := Default()

	assert.Equal(t, "Tax & Fees", e.CategorizeLineItem("Sales TAX", "Food and Drink"))
	assert.Equal(t, "Tax & Fees", e.CategorizeLineItem("Bag fee", "Food and Drink"))
	assert.Equal(t, "Discounts", e.CategorizeLineItem("Member coupon", "Food and Drink"))
	assert.Equal(t, "Food and Drink", e.CategorizeLineItem("Bananas", "Food and Drink"))
	assert.Equal(t, "Shopping", e.CategorizeLineItem("Bananas", ""))
}

func TestEngine_Flags(t *testing.T) {
	e := Default()

	huge := e.Flags(&domain.Transaction{Amount: amt("-12000")}, 0)
	require.Len(t, huge, 2)
	assert.Equal(t, FlagLargeAmount, huge[0].Type)
	assert.Equal(t, "Transaction amount exceeds $10,000", huge[0].Message)
	assert.Equal(t, FlagLargeTransaction, huge[1].Type)

	assert.Empty(t, e.Flags(&domain.Transaction{Amount: amt("-500")}, 0))

	receipt := &domain.Transaction{Amount: amt("-20"), Source: domain.SourceReceiptOCR}
	flags := e.Flags(receipt, 11)
	require.Len(t, flags, 1)
	assert.Equal(t, FlagDetailedReceipt, flags[0].Type)
	assert.Empty(t, e.Flags(receipt, 10))
}

func TestParseTable(t *testing.T) {
	tbl, err := ParseTable([]byte(`
rules:
  - category: Pets
    keywords: [PETCO, chewy]
    subcategories:
      - name: Supplies
        keywords: [Petco]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"petco", "chewy"}, tbl.Rules[0].Keywords)
	assert.Equal(t, Label{"General", "Uncategorized"}, tbl.Default)
	assert.Equal(t, "Income", tbl.Income.Category)

	got := NewEngine(tbl).Categorize("", "PETCO 1123", amt("-30"))
	assert.Equal(t, "Pets", got.Category)
	assert.Equal(t, "Supplies", got.Subcategory)

	_, err = ParseTable([]byte("rules: []"))
	assert.Error(t, err)
	_, err = ParseTable([]byte("rules: [: bad"))
	assert.Error(t, err)
}
