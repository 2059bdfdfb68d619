package entity

// BudgetEntry is one structured line item extracted from a budget document.
// The field set mirrors what the extraction workflow emits; entries carry no
// identity of their own beyond their position in the owning aggregate.
type BudgetEntry struct {
	Year           int     `json:"year"`
	Department     string  `json:"department"`
	Category       string  `json:"category"`
	Subcategory    string  `json:"subcategory,omitempty"`
	AmountUSD      float64 `json:"amount_usd"`
	FundSource     string  `json:"fund_source,omitempty"`
	GeographicArea string  `json:"geographic_area,omitempty"`
	FiscalPeriod   string  `json:"fiscal_period,omitempty"`
	Purpose        string  `json:"purpose"`
}

// UserBudgetAggregate is the persisted per-user record: every entry extracted
// for this uid so far, insertion order preserved, append-only across merges.
// Duplicate entries from repeated uploads are kept by design.
type UserBudgetAggregate struct {
	UID     string        `json:"uid"`
	Entries []BudgetEntry `json:"budget_entries"`
}
