package credit

// Account is a credit account owning transactions.
type Account struct {
	ID       string
	Name     string
	Currency string
}
