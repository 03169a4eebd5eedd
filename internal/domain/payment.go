package domain

// PaymentSession is the provider handle the storefront hands to the payment popup.
type PaymentSession struct {
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
}
