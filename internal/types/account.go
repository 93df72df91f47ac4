package types

// Account holds one user's balance in one currency. UserID references an
// identity owned outside the exchange.
type Account struct {
	UserID   string   `json:"user_id"`
	Currency Currency `json:"currency"`
	Balance  int64    `json:"balance"`
	Held     int64    `json:"held"`
}

// Available is the part of Balance not reserved by open orders
func (a Account) Available() int64 {
	return a.Balance - a.Held
}

// Exchange describes a venue and the currency its securities are quoted in
type Exchange struct {
	ID           int64    `json:"id"`
	APIURL       string   `json:"api_url"`
	BaseCurrency Currency `json:"base_currency"`
}

// ExchangeSecurity lists a currency as tradable on an exchange
type ExchangeSecurity struct {
	ExchangeID int64    `json:"exchange_id"`
	Currency   Currency `json:"currency"`
}
