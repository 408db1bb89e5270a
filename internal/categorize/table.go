package categorize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Table is the data-driven rule set behind the Engine.
type Table struct {
	Rules           []CategoryRule `yaml:"rules"`
	Merchants       []MerchantRule `yaml:"merchants"`
	AmountFallbacks []AmountRule   `yaml:"amount_fallbacks"`
	Default         Label          `yaml:"default"`
	Income          IncomeRule     `yaml:"income"`
	ReceiptVendors  []VendorRule   `yaml:"receipt_vendors"`
	LineItems       LineItemRules  `yaml:"line_items"`
	Flags           FlagRules      `yaml:"flags"`
}

// CategoryRule is one top-level category and the keywords that select it.
type CategoryRule struct {
	Category      string            `yaml:"category"`
	Keywords      []string          `yaml:"keywords"`
	Subcategories []SubcategoryRule `yaml:"subcategories"`
}

// SubcategoryRule maps keywords of the parent category to a second-level label.
type SubcategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// MerchantRule renames raw descriptors containing Pattern.
type MerchantRule struct {
	Pattern string `yaml:"pattern"`
	Name    string `yaml:"name"`
}

// AmountRule applies when the absolute amount is above or below a bound.
type AmountRule struct {
	Above       *float64 `yaml:"above"`
	Below       *float64 `yaml:"below"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Confidence  float64  `yaml:"confidence"`
}

// Label is a category/subcategory pair.
type Label struct {
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
}

// IncomeRule classifies positive amounts.
type IncomeRule struct {
	Category    string       `yaml:"category"`
	Subcategory string       `yaml:"subcategory"`
	Confidence  float64      `yaml:"confidence"`
	Tiers       []AmountRule `yaml:"tiers"`
}

// VendorRule categorizes an OCR receipt by its vendor name.
type VendorRule struct {
	Keywords    []string `yaml:"keywords"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
}

// LineItemRules categorizes receipt line items.
type LineItemRules struct {
	DefaultCategory string         `yaml:"default_category"`
	Rules           []LineItemRule `yaml:"rules"`
}

// LineItemRule assigns Category to line items whose description contains a keyword.
type LineItemRule struct {
	Keywords []string `yaml:"keywords"`
	Category string   `yaml:"category"`
}

// FlagRules configures the business-rule flags.
type FlagRules struct {
	LargeAmount      ThresholdRule       `yaml:"large_amount"`
	LargeTransaction ThresholdRule       `yaml:"large_transaction"`
	DetailedReceipt  DetailedReceiptRule `yaml:"detailed_receipt"`
}

// DetailedReceiptRule flags receipts with more than LineItems items.
type DetailedReceiptRule struct {
	LineItems int    `yaml:"line_items"`
	Message   string `yaml:"message"`
}

// ThresholdRule flags amounts strictly above Above.
type ThresholdRule struct {
	Above   float64 `yaml:"above"`
	Message string  `yaml:"message"`
}

// DefaultTable returns the embedded rule table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("categorize: embedded rules.yaml: %v", err))
	}
	return t
}

// LoadTable reads a rule table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTable: reading %s: %w", path, err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("LoadTable: %s: %w", path, err)
	}
	return t, nil
}

// ParseTable decodes and validates a YAML rule table. Keywords are lowercased
// and merchant patterns uppercased.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("ParseTable: decoding yaml: %w", err)
	}

	if len(t.Rules) == 0 {
		return nil, fmt.Errorf("ParseTable: no category rules")
	}
	for i := range t.Rules {
		r := &t.Rules[i]
		if r.Category == "" {
			return nil, fmt.Errorf("ParseTable: rule %d has no category", i)
		}
		lowerAll(r.Keywords)
		for j := range r.Subcategories {
			lowerAll(r.Subcategories[j].Keywords)
		}
	}
	for i := range t.Merchants {
		t.Merchants[i].Pattern = strings.ToUpper(t.Merchants[i].Pattern)
	}
	for i := range t.ReceiptVendors {
		lowerAll(t.ReceiptVendors[i].Keywords)
	}
	for i := range t.LineItems.Rules {
		lowerAll(t.LineItems.Rules[i].Keywords)
	}

	if t.Default.Category == "" {
		t.Default = Label{Category: "General", Subcategory: "Uncategorized"}
	}
	if t.Income.Category == "" {
		t.Income.Category = "Income"
	}
	if t.Income.Subcategory == "" {
		t.Income.Subcategory = "Deposit"
	}
	if t.LineItems.DefaultCategory == "" {
		t.LineItems.DefaultCategory = "Shopping"
	}
	return &t, nil
}

func lowerAll(words []string) {
	for i, w := range words {
		words[i] = strings.ToLower(strings.TrimSpace(w))
	}
}
