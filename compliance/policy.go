package compliance

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/dedup"
)

// Regions known to the default policy set.
const (
	RegionUS = "US"
	RegionCA = "CA"
	RegionUK = "UK"
	RegionEU = "EU"
)

// StrictPolicyName names the fail-closed policy used for unknown regions.
const StrictPolicyName = "strict"

var postalAddress = regexp.MustCompile(`(?i)\d+\s+[\w .]+\b(st|street|ave|avenue|rd|road|blvd|boulevard)\b`)

// DefaultForbiddenPhrases are unverifiable claims no policy allows.
var DefaultForbiddenPhrases = []string{
	"guaranteed",
	"100%",
	"no risk",
	"best in the world",
	"revolutionary",
	"breakthrough",
}

// Sender identifies the organisation sending outreach; it is rendered into
// policy footers.
type Sender struct {
	Name           string `yaml:"name"`
	Address        string `yaml:"address"`
	UnsubscribeURL string `yaml:"unsubscribe_url"`
	PrivacyURL     string `yaml:"privacy_url"`
}

// DefaultSender returns placeholder sender details.
func DefaultSender() Sender {
	return Sender{
		Name:           "Prospectmesh Inc.",
		Address:        "123 Market St, San Francisco, CA 94105",
		UnsubscribeURL: "https://prospectmesh.example.com/unsubscribe",
		PrivacyURL:     "https://prospectmesh.example.com/privacy",
	}
}

// Policy is a regional sending policy.
type Policy struct {
	Name    string
	Regions []string

	// RequiredSnippets must appear in the draft, case-insensitively.
	RequiredSnippets []string

	// RequireAddress demands a physical postal address in the draft.
	RequireAddress bool

	ForbiddenPhrases []string

	// Footer is appended by the writer; it satisfies the policy's mandates.
	Footer string
}

// Verify checks the rendered draft text and returns the first violation.
func (p Policy) Verify(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, s := range p.RequiredSnippets {
		if !strings.Contains(lower, strings.ToLower(s)) {
			return fmt.Sprintf("policy %s: missing %q", p.Name, s), false
		}
	}
	if p.RequireAddress && !postalAddress.MatchString(text) {
		return fmt.Sprintf("policy %s: missing postal address", p.Name), false
	}
	for _, phrase := range p.ForbiddenPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return fmt.Sprintf("policy %s: forbidden phrase %q", p.Name, phrase), false
		}
	}
	return "", true
}

// DefaultPolicies returns the CAN-SPAM, CASL, PECR and GDPR style policies
// rendered for sender.
func DefaultPolicies(sender Sender) []Policy {
	base := fmt.Sprintf("\n\n---\n%s\n%s\nUnsubscribe: %s", sender.Name, sender.Address, sender.UnsubscribeURL)

	return []Policy{
		{
			Name:             "can-spam",
			Regions:          []string{RegionUS},
			RequiredSnippets: []string{"unsubscribe"},
			RequireAddress:   true,
			ForbiddenPhrases: DefaultForbiddenPhrases,
			Footer:           base,
		},
		{
			Name:             "casl",
			Regions:          []string{RegionCA},
			RequiredSnippets: []string{"unsubscribe", "consent"},
			RequireAddress:   true,
			ForbiddenPhrases: DefaultForbiddenPhrases,
			Footer:           base + "\nYou receive this message based on implied consent from your published business role.",
		},
		{
			Name:             "pecr",
			Regions:          []string{RegionUK},
			RequiredSnippets: []string{"unsubscribe", "opt out"},
			RequireAddress:   true,
			ForbiddenPhrases: DefaultForbiddenPhrases,
			Footer:           base + "\nYou can opt out of further messages at any time.",
		},
		{
			Name:             "gdpr",
			Regions:          []string{RegionEU},
			RequiredSnippets: []string{"unsubscribe", "privacy"},
			RequireAddress:   true,
			ForbiddenPhrases: DefaultForbiddenPhrases,
			Footer:           base + "\nPrivacy notice: " + sender.PrivacyURL,
		},
	}
}

// Strictest merges policies into one that demands every mandate of each.
// Its footer concatenates the distinct footer lines so it satisfies the merge.
func Strictest(policies []Policy) Policy {
	strict := Policy{Name: StrictPolicyName}

	snippets := map[string]struct{}{}
	phrases := map[string]struct{}{}
	var footerLines []string
	seenLines := map[string]struct{}{}

	for _, p := range policies {
		strict.RequireAddress = strict.RequireAddress || p.RequireAddress
		for _, s := range p.RequiredSnippets {
			snippets[strings.ToLower(s)] = struct{}{}
		}
		for _, f := range p.ForbiddenPhrases {
			phrases[strings.ToLower(f)] = struct{}{}
		}
		for _, line := range strings.Split(p.Footer, "\n") {
			if _, ok := seenLines[line]; ok && line != "" {
				continue
			}
			seenLines[line] = struct{}{}
			footerLines = append(footerLines, line)
		}
	}

	strict.RequiredSnippets = sortedKeys(snippets)
	strict.ForbiddenPhrases = sortedKeys(phrases)
	strict.Footer = collapseBlank(strings.Join(footerLines, "\n"))

	return strict
}

// collapseBlank keeps the leading separator while dropping repeated blank
// lines produced by merging footers.
func collapseBlank(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for i, l := range lines {
		if l == "" && i > 1 {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var tldRegions = map[string]string{
	"com": RegionUS, "us": RegionUS, "net": RegionUS, "org": RegionUS,
	"ca": RegionCA,
	"uk": RegionUK,
	"eu": RegionEU, "de": RegionEU, "fr": RegionEU, "es": RegionEU, "it": RegionEU,
	"nl": RegionEU, "ie": RegionEU, "be": RegionEU, "at": RegionEU, "se": RegionEU,
	"fi": RegionEU, "dk": RegionEU, "pt": RegionEU, "pl": RegionEU,
}

var regionAliases = map[string]string{
	"USA": RegionUS, "UNITED STATES": RegionUS,
	"CANADA": RegionCA,
	"GB": RegionUK, "UNITED KINGDOM": RegionUK,
	"EUROPE": RegionEU,
}

// DetectRegion resolves the region of a company: its explicit region first,
// then the top-level domain. It returns "" when unresolvable.
func DetectRegion(c core.Company) string {
	if r := strings.ToUpper(strings.TrimSpace(c.Region)); r != "" {
		if alias, ok := regionAliases[r]; ok {
			return alias
		}
		return r
	}

	domain := dedup.NormalizeDomain(c.Domain)
	if i := strings.LastIndex(domain, "."); i >= 0 {
		return tldRegions[domain[i+1:]]
	}
	return ""
}
