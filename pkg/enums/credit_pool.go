package enums

// CreditPool names one of the two star balances a user holds.
type CreditPool string

const (
	// CreditPoolSubscription is replenished on the billing cycle and
	// spent first, before it expires.
	CreditPoolSubscription CreditPool = "subscription"
	// CreditPoolPackage is purchased outright and never expires.
	CreditPoolPackage CreditPool = "package"
)

func (p CreditPool) IsValid() bool {
	return p == CreditPoolSubscription || p == CreditPoolPackage
}
