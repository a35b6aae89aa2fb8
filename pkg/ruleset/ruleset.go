package ruleset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type RuleSet []Rule

// Rule overrides outbound request headers for the domains it names.
// A header value of "none" removes the header instead of setting it.
type Rule struct {
	Domain  string   `yaml:"domain,omitempty"`
	Domains []string `yaml:"domains,omitempty"`
	Paths   []string `yaml:"paths,omitempty"`
	Headers struct {
		UserAgent     string `yaml:"user-agent,omitempty"`
		XForwardedFor string `yaml:"x-forwarded-for,omitempty"`
		Referer       string `yaml:"referer,omitempty"`
		Cookie        string `yaml:"cookie,omitempty"`
	} `yaml:"headers,omitempty"`
}

// Load reads every .yml/.yaml file under the ';'-separated paths.
// An empty rulePaths yields an empty RuleSet.
func Load(rulePaths string) (RuleSet, error) {
	if strings.TrimSpace(rulePaths) == "" {
		return RuleSet{}, nil
	}

	var ruleSet RuleSet
	var errs []error

	for _, rulePath := range strings.Split(rulePaths, ";") {
		trimmedPath := strings.TrimSpace(rulePath)
		if trimmedPath == "" {
			continue
		}

		var rules RuleSet
		err := filepath.Walk(trimmedPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !(strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")) {
				return nil
			}
			fh, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to read rules file '%s': %w", path, err)
			}
			defer fh.Close()

			r, err := Decode(fh)
			if err != nil {
				return fmt.Errorf("syntax error in rules file '%s': %w", path, err)
			}
			rules = append(rules, r...)
			return nil
		})

		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load rules from '%s': %w", trimmedPath, err))
		} else {
			ruleSet = append(ruleSet, rules...)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("errors while loading rulesets: %v", errs)
	}

	log.Info().Int("rules", ruleSet.Count()).Int("domains", ruleSet.DomainCount()).Msg("loaded ruleset")
	return ruleSet, nil
}

// Decode parses a YAML list of rules.
func Decode(r io.Reader) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.NewDecoder(r).Decode(&rs); err != nil && err != io.EOF {
		return nil, err
	}
	return rs, nil
}

// Match returns the first rule whose domain equals host or is a parent of
// it, restricted to Paths when the rule lists any.
func (rs RuleSet) Match(host, path string) (Rule, bool) {
	host = strings.ToLower(host)
	for _, rule := range rs {
		for _, d := range rule.domains() {
			d = strings.ToLower(d)
			if d != host && !strings.HasSuffix(host, "."+d) {
				continue
			}
			if len(rule.Paths) > 0 && !hasPrefix(path, rule.Paths) {
				continue
			}
			return rule, true
		}
	}
	return Rule{}, false
}

func (r Rule) domains() []string {
	if r.Domain == "" {
		return r.Domains
	}
	return append([]string{r.Domain}, r.Domains...)
}

func (rs RuleSet) Domains() []string {
	var domains []string
	for _, rule := range rs {
		domains = append(domains, rule.domains()...)
	}
	return domains
}

func (rs RuleSet) DomainCount() int {
	return len(rs.Domains())
}

func (rs RuleSet) Count() int {
	return len(rs)
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
