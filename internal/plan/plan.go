package plan

// Subscription tiers, ordered. A feature or agent that requires a tier is
// usable by any subscription whose tier is at least as high.
const (
	Free         = "free"
	Professional = "professional"
	Team         = "team"
)

var ordinals = map[string]int{
	Free:         0,
	Professional: 1,
	Team:         2,
}

// Ordinal maps a plan type to its rank. Unknown plans rank as free.
func Ordinal(planType string) int {
	return ordinals[planType]
}

func Valid(planType string) bool {
	_, ok := ordinals[planType]
	return ok
}

// Satisfies reports whether a subscription on `have` may use a resource
// that requires `required`.
func Satisfies(have, required string) bool {
	return Ordinal(have) >= Ordinal(required)
}

type Plan struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      int      `json:"price"`
	UsageLimit int      `json:"usage_limit"`
	Features   []string `json:"features"`
	Popular    bool     `json:"popular"`
}

// Catalog is the static list shown on the pricing page. Prices are monthly.
var Catalog = []Plan{
	{
		ID:         Free,
		Name:       "Free",
		Price:      0,
		UsageLimit: 10,
		Features: []string{
			"10 conversations per month",
			"Basic AI employees",
			"Standard support",
		},
	},
	{
		ID:         Professional,
		Name:       "Professional",
		Price:      99,
		UsageLimit: 500,
		Features: []string{
			"500 conversations per month",
			"All AI employees",
			"Priority support",
			"Data export",
		},
		Popular: true,
	},
	{
		ID:         Team,
		Name:       "Team",
		Price:      299,
		UsageLimit: 2000,
		Features: []string{
			"2000 conversations per month",
			"All AI employees",
			"24/7 dedicated support",
			"Data export",
			"Team collaboration",
			"Custom AI employees",
		},
	},
}

// ByID returns the catalog entry for a plan type.
func ByID(id string) (Plan, bool) {
	for _, p := range Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
