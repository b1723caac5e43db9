package cel

// EarnRateExamples are multiplier expressions accepted by rewards.policy=expression.
var EarnRateExamples = map[string]string{
	"flat":             `1.0`,
	"category_bonus":   `category == "travel" ? 2.0 : 1.0`,
	"merchant_promo":   `merchant in ["Coffee Co", "Book Nook"] ? 1.5 : 1.0`,
	"large_basket":     `amount >= 500.0 ? 1.25 : 1.0`,
	"combined":         `(category == "grocery" ? 3.0 : 1.0) * (merchant == "" ? 0.5 : 1.0)`,
	"unknown_merchant": `merchant == "" ? 0.0 : 1.0`,
}
