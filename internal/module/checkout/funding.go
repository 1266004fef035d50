package checkout

// FundingSource identifies how the shopper pays. All sources flow through
// the same provider order lifecycle; only the button presentation differs.
type FundingSource string

const (
	FundingPayPal    FundingSource = "paypal"
	FundingCard      FundingSource = "card"
	FundingGooglePay FundingSource = "googlepay"
)

// Valid reports whether the source is one this server supports.
func (f FundingSource) Valid() bool {
	switch f {
	case FundingPayPal, FundingCard, FundingGooglePay:
		return true
	}
	return false
}

// ButtonStyle is the presentation config forwarded to the storefront.
type ButtonStyle struct {
	Layout string `json:"layout"`
	Color  string `json:"color"`
	Shape  string `json:"shape"`
	Label  string `json:"label"`
}

// PaymentOption is one selectable payment method.
type PaymentOption struct {
	Source FundingSource `json:"source"`
	Label  string        `json:"label"`
	Style  ButtonStyle   `json:"style"`
}

var defaultOptions = map[FundingSource]PaymentOption{
	FundingPayPal: {
		Source: FundingPayPal,
		Label:  "PayPal",
		Style:  ButtonStyle{Layout: "vertical", Color: "gold", Shape: "rect", Label: "paypal"},
	},
	FundingCard: {
		Source: FundingCard,
		Label:  "Debit or Credit Card",
		Style:  ButtonStyle{Layout: "vertical", Color: "black", Shape: "rect", Label: "pay"},
	},
	FundingGooglePay: {
		Source: FundingGooglePay,
		Label:  "Google Pay",
		Style:  ButtonStyle{Layout: "vertical", Color: "white", Shape: "rect", Label: "pay"},
	},
}

// PaymentOptions returns the selectable options for the enabled sources,
// in the given order. Unsupported names are omitted rather than rendered
// as inert buttons.
func PaymentOptions(enabled []string) []PaymentOption {
	options := make([]PaymentOption, 0, len(enabled))
	for _, name := range enabled {
		if opt, ok := defaultOptions[FundingSource(name)]; ok {
			options = append(options, opt)
		}
	}
	return options
}
