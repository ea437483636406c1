package ledger

// SeedTransactions returns the fixed demo data written by InitLedger. A fresh
// slice is returned on every call.
func SeedTransactions() []Transaction {
	seed := func(id string, typ TxType, amount float64, category, description, date string) Transaction {
		return Transaction{
			TransactionID: id,
			SMEID:         "SME001",
			Type:          typ,
			Amount:        amount,
			Category:      category,
			Description:   description,
			Date:          date,
			Timestamp:     date + "T00:00:00.000Z",
			CreatedBy:     DefaultIdentity,
		}
	}

	return []Transaction{
		seed("TX001", Inflow, 150000, "Sales Revenue", "Product sales - January batch", "2024-01-15"),
		seed("TX002", Outflow, 45000, "Operating Expenses", "Employee salaries", "2024-01-20"),
		seed("TX003", Inflow, 85000, "Sales Revenue", "Service income - consulting", "2024-01-25"),
		seed("TX004", Outflow, 12000, "Utilities", "Electricity and water bills", "2024-02-01"),
		seed("TX005", Inflow, 200000, "Sales Revenue", "Wholesale order - bulk purchase", "2024-02-10"),
		seed("TX006", Outflow, 35000, "Inventory", "Raw materials purchase", "2024-02-12"),
		seed("TX007", Outflow, 8000, "Marketing", "Social media advertising", "2024-02-15"),
		seed("TX008", Inflow, 120000, "Sales Revenue", "Retail sales - February", "2024-02-28"),
	}
}
