package contacts

import "strings"

// StageMap translates raw lifecycle stage codes from the remote CRM into
// human-readable labels. Portals can define custom stages with numeric
// identifiers, so the mapping is injectable; DefaultStages covers the
// built-in codes.
type StageMap map[string]string

func DefaultStages() StageMap {
	return StageMap{
		"subscriber":             "Subscriber",
		"lead":                   "Lead",
		"marketingqualifiedlead": "Marketing Qualified Lead",
		"salesqualifiedlead":     "Sales Qualified Lead",
		"opportunity":            "Opportunity",
		"customer":               "Customer",
		"evangelist":             "Evangelist",
		"other":                  "Other",
	}
}

// Label resolves a raw stage code to its label. Unknown numeric codes are
// labelled as custom stages so downstream consumers never see raw
// identifiers; anything else passes through unchanged.
func (m StageMap) Label(code string) string {
	if code == "" {
		return ""
	}

	if label, ok := m[code]; ok {
		return label
	}

	if isNumeric(code) {
		return "Custom Stage " + code
	}

	return code
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) == -1
}
