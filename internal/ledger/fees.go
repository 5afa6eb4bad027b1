package ledger

// Fee levies rate percent on amount, rounded up to whole coins.
func Fee(amount, rate int64) int64 {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return (amount*rate + 99) / 100
}

// TaxShare is the slice of a fee accrued to one referrer.
func TaxShare(fee int64) int64 {
	return fee / 2
}
