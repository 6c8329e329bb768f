package safety

import "regexp"

// ProtectedField names which candidate field a protected pattern matches
// against.
type ProtectedField int

const (
	FieldCommand ProtectedField = iota
	FieldBasename
	FieldUser
	FieldCgroup
)

func (f ProtectedField) String() string {
	switch f {
	case FieldCommand:
		return "command"
	case FieldBasename:
		return "basename"
	case FieldUser:
		return "user"
	case FieldCgroup:
		return "cgroup"
	default:
		return "unknown"
	}
}

// ProtectedRule is one literal-substring-or-regex rule. Exactly one of
// Literal or Pattern should be set; Pattern takes precedence when both
// are present.
type ProtectedRule struct {
	Field   ProtectedField
	Literal string
	Pattern *regexp.Regexp
}

// Matches reports whether value trips this rule.
func (r ProtectedRule) Matches(value string) bool {
	if r.Pattern != nil {
		return r.Pattern.MatchString(value)
	}
	return r.Literal != "" && containsSubstring(value, r.Literal)
}

func containsSubstring(s, sub string) bool {
	if len(sub) == 0 {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// Candidate is the subset of a target process's fields the protected
// pattern gate matches against.
type Candidate struct {
	Command  string
	Basename string
	User     string
	Cgroup   string
}

func (c Candidate) fieldValue(f ProtectedField) string {
	switch f {
	case FieldCommand:
		return c.Command
	case FieldBasename:
		return c.Basename
	case FieldUser:
		return c.User
	case FieldCgroup:
		return c.Cgroup
	default:
		return ""
	}
}

// ProtectedRuleSet is the compiled set of protected-pattern rules.
type ProtectedRuleSet struct {
	Rules []ProtectedRule
}

// CheckProtectedPatterns blocks the action if any rule matches; the
// matching rule's field and value are recorded for audit.
func CheckProtectedPatterns(set ProtectedRuleSet, c Candidate) PreCheckResult {
	for _, rule := range set.Rules {
		value := c.fieldValue(rule.Field)
		if value == "" {
			continue
		}
		if rule.Matches(value) {
			res := fail("protected_pattern", "matched protected pattern on "+rule.Field.String())
			res.Fields = map[string]string{"field": rule.Field.String(), "value": value}
			return res
		}
	}
	return pass("protected_pattern")
}
