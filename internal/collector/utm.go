package collector

import "net/url"

// UTM holds the campaign parameters of a page URL.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// ExtractUTM reads the utm_* query parameters of rawURL. Missing parameters
// and unparseable URLs yield empty strings.
func ExtractUTM(rawURL string) UTM {
	u, err := url.Parse(rawURL)
	if err != nil {
		return UTM{}
	}
	q := u.Query()
	return UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
}

// pagePath returns the path of rawURL, "/" when it has none.
func pagePath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
