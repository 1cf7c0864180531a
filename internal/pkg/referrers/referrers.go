package referrers

import "strings"

// Source labels that are not taken from a campaign parameter.
const (
	Direct   = "Direct"
	Referral = "Referral"
)

type rule struct {
	label  string
	tokens []string
}

// Checked in order; the first rule with a token contained in the referrer wins.
var rules = []rule{
	{label: "Google", tokens: []string{"google"}},
	{label: "Facebook", tokens: []string{"facebook"}},
	{label: "LinkedIn", tokens: []string{"linkedin"}},
	{label: "Instagram", tokens: []string{"instagram"}},
	{label: "YouTube", tokens: []string{"youtube"}},
	{label: "Twitter", tokens: []string{"twitter", "x.com"}},
}

// Classify derives the traffic source of a page view. A campaign source wins
// as-is; otherwise the referrer is matched against the known networks,
// falling back to Referral for other sites and Direct when there is none.
func Classify(utmSource, referrer string) string {
	if source := strings.TrimSpace(utmSource); source != "" {
		return source
	}

	ref := strings.ToLower(strings.TrimSpace(referrer))
	if ref == "" {
		return Direct
	}

	for _, r := range rules {
		for _, token := range r.tokens {
			if strings.Contains(ref, token) {
				return r.label
			}
		}
	}
	return Referral
}
