// Package device classifies visitors by user agent and screen size.
package device

import (
	_ "embed"
	"fmt"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types
const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
)

// Unknown is reported when no browser or OS rule matches.
const Unknown = "Unknown"

//go:embed rules.yml
var defaultRules []byte

// Screen holds the dimensions the page reports.
type Screen struct {
	Width          int
	Height         int
	ViewportWidth  int
	ViewportHeight int
}

// Info is the classification of one client.
type Info struct {
	Type           string
	Browser        string
	OS             string
	ScreenWidth    int
	ScreenHeight   int
	ViewportWidth  int
	ViewportHeight int
}

type ruleEntry struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

type ruleFile struct {
	Types    []ruleEntry `yaml:"types"`
	Browsers []ruleEntry `yaml:"browsers"`
	OSs      []ruleEntry `yaml:"oss"`
}

type compiledRule struct {
	name  string
	regex *pcre.Regexp
}

// Classifier applies ordered rules; the first match of each list wins.
type Classifier struct {
	types    []compiledRule
	browsers []compiledRule
	oss      []compiledRule
}

// NewClassifier compiles YAML rules.
func NewClassifier(data []byte) (*Classifier, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse device rules: %w", err)
	}

	c := &Classifier{}
	var err error
	if c.types, err = compile(file.Types); err != nil {
		return nil, err
	}
	if c.browsers, err = compile(file.Browsers); err != nil {
		return nil, err
	}
	if c.oss, err = compile(file.OSs); err != nil {
		return nil, err
	}
	return c, nil
}

func compile(entries []ruleEntry) ([]compiledRule, error) {
	rules := make([]compiledRule, 0, len(entries))
	for _, e := range entries {
		regex, err := pcre.Compile(e.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", e.Name, err)
		}
		rules = append(rules, compiledRule{name: e.Name, regex: regex})
	}
	return rules, nil
}

var (
	defaultClassifier *Classifier
	once              sync.Once
)

// Default returns the classifier built from the embedded rules.
func Default() *Classifier {
	once.Do(func() {
		c, err := NewClassifier(defaultRules)
		if err != nil {
			panic(fmt.Sprintf("device: embedded rules are invalid: %v", err))
		}
		defaultClassifier = c
	})
	return defaultClassifier
}

// Classify uses the default classifier.
func Classify(userAgent string, screen Screen) Info {
	return Default().Classify(userAgent, screen)
}

// Classify derives device type, browser and OS from the user agent and
// copies the screen dimensions.
func (c *Classifier) Classify(userAgent string, screen Screen) Info {
	return Info{
		Type:           firstMatch(c.types, userAgent, TypeDesktop),
		Browser:        firstMatch(c.browsers, userAgent, Unknown),
		OS:             firstMatch(c.oss, userAgent, Unknown),
		ScreenWidth:    screen.Width,
		ScreenHeight:   screen.Height,
		ViewportWidth:  screen.ViewportWidth,
		ViewportHeight: screen.ViewportHeight,
	}
}

func firstMatch(rules []compiledRule, userAgent, fallback string) string {
	if userAgent == "" {
		return fallback
	}
	for _, r := range rules {
		if r.regex.MatchString(userAgent) {
			return r.name
		}
	}
	return fallback
}
