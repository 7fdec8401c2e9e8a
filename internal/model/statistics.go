package model

// InvoiceStats aggregates payment totals over the challans a user created.
// Sums default to zero when no rows match, never null.
type InvoiceStats struct {
	TotalEntries  int64   `json:"total_entries"`
	TotalAmount   float64 `json:"total_amount"`
	TotalPaidCash float64 `json:"total_paid_cash"`
	TotalPaidUPI  float64 `json:"total_paid_upi"`
}

// DashboardStats backs the ultra-admin overview endpoint.
type DashboardStats struct {
	TotalBranches int64 `json:"total_branches"`
	TotalUsers    int64 `json:"total_users"`
}
