// Package content decides what a rendered marketplace page actually shows and
// prepares locally rendered HTML for classification and extraction.
package content

import (
	"strings"

	"github.com/sells-group/listing-sync/internal/model"
)

// DefaultMinLength is the shortest rendered body treated as usable.
const DefaultMinLength = 200

// DefaultSubjectKeyword is the core noun of an authenticated results page.
const DefaultSubjectKeyword = "listing"

// DefaultFieldKeywords corroborate the subject keyword. Login pages rarely
// carry financial field labels.
var DefaultFieldKeywords = []string{
	"asking price",
	"revenue",
	"profit",
	"cash flow",
	"multiple",
	"industry",
	"location",
	"ttm",
}

var loginPhrases = []string{
	"sign in",
	"log in",
	"login",
	"forgot password",
	"forgot your password",
	"reset your password",
	"create an account",
	"create account",
	"please log in",
	"sign up to view",
	"remember me",
	"session has expired",
}

var challengePhrases = []string{
	"verify you are human",
	"verifying you are human",
	"checking your browser",
	"checking if the site connection is secure",
	"cf-browser-verification",
	"are you a robot",
	"captcha",
	"unusual traffic",
	"press & hold",
	"press and hold",
	"attention required",
	"access denied",
}

// Rules tune the lexical signals used by a Classifier.
type Rules struct {
	SubjectKeyword string   `yaml:"subject_keyword" mapstructure:"subject_keyword"`
	FieldKeywords  []string `yaml:"field_keywords" mapstructure:"field_keywords"`
	MinLength      int      `yaml:"min_length" mapstructure:"min_length"`
}

// DefaultRules returns the rules for the marketplace search page.
func DefaultRules() Rules {
	return Rules{
		SubjectKeyword: DefaultSubjectKeyword,
		FieldKeywords:  DefaultFieldKeywords,
		MinLength:      DefaultMinLength,
	}
}

// Verdict is the classification of one rendered page plus the raw signals
// behind it.
type Verdict struct {
	Class        model.ContentClass `json:"class"`
	LoginHit     bool               `json:"login_hit"`
	DomainHit    bool               `json:"domain_hit"`
	ChallengeHit bool               `json:"challenge_hit"`
	Matched      string             `json:"matched,omitempty"`
}

// Classifier applies Rules to rendered content. It is safe for concurrent use.
type Classifier struct {
	subject string
	fields  []string
	minLen  int
}

// NewClassifier creates a Classifier, filling unset rules with defaults.
func NewClassifier(rules Rules) *Classifier {
	def := DefaultRules()
	if strings.TrimSpace(rules.SubjectKeyword) == "" {
		rules.SubjectKeyword = def.SubjectKeyword
	}
	if len(rules.FieldKeywords) == 0 {
		rules.FieldKeywords = def.FieldKeywords
	}
	if rules.MinLength <= 0 {
		rules.MinLength = def.MinLength
	}

	fields := make([]string, 0, len(rules.FieldKeywords))
	for _, f := range rules.FieldKeywords {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			fields = append(fields, f)
		}
	}
	return &Classifier{
		subject: strings.ToLower(strings.TrimSpace(rules.SubjectKeyword)),
		fields:  fields,
		minLen:  rules.MinLength,
	}
}

// MinLength returns the usable-content threshold in characters.
func (c *Classifier) MinLength() int { return c.minLen }

// Classify decides whether content is an authenticated page, a login wall, a
// bot challenge or too short to use. A login phrase only counts when the page
// lacks domain content, since authenticated pages carry "log in" links in
// their navigation too.
func (c *Classifier) Classify(content string) Verdict {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)

	v := Verdict{DomainHit: c.domainHit(lower)}

	if phrase, ok := firstMatch(lower, challengePhrases); ok {
		v.ChallengeHit = true
		v.Matched = phrase
	}
	if phrase, ok := firstMatch(lower, loginPhrases); ok {
		v.LoginHit = true
		if !v.ChallengeHit {
			v.Matched = phrase
		}
	}

	switch {
	case v.ChallengeHit:
		v.Class = model.ContentChallenge
	case v.LoginHit && !v.DomainHit:
		v.Class = model.ContentLoginWall
	case len(trimmed) < c.minLen:
		v.Class = model.ContentInsufficient
		v.Matched = ""
	default:
		v.Class = model.ContentAuthenticated
		v.Matched = ""
	}
	return v
}

func (c *Classifier) domainHit(lower string) bool {
	if !strings.Contains(lower, c.subject) {
		return false
	}
	_, ok := firstMatch(lower, c.fields)
	return ok
}

func firstMatch(lower string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
