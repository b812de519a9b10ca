package security

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	CategorySQLInjection     = "sql_injection"
	CategoryXSS              = "xss"
	CategoryPathTraversal    = "path_traversal"
	CategoryCommandInjection = "command_injection"
	CategoryScanner          = "scanner"
)

type pattern struct {
	name     string
	category string
	re       *regexp.Regexp
}

// Finding names the first pattern that matched a request.
type Finding struct {
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
	Field    string `json:"field"`
}

var requestPatterns = []pattern{
	{"union_select", CategorySQLInjection, regexp.MustCompile(`(?i)union(\s|/\*.*?\*/)+(all\s+)?select`)},
	{"tautology", CategorySQLInjection, regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\w+'?\s*=\s*'?\w+`)},
	{"stacked_query", CategorySQLInjection, regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter|insert|update)\s`)},
	{"time_based", CategorySQLInjection, regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep|waitfor\s+delay)\s*[\('"]`)},
	{"schema_probe", CategorySQLInjection, regexp.MustCompile(`(?i)information_schema|sys\.objects`)},
	{"script_tag", CategoryXSS, regexp.MustCompile(`(?i)<\s*/?\s*script`)},
	{"js_scheme", CategoryXSS, regexp.MustCompile(`(?i)javascript\s*:`)},
	{"event_handler", CategoryXSS, regexp.MustCompile(`(?i)\bon(error|load|mouseover|focus|click|submit)\s*=`)},
	{"iframe_tag", CategoryXSS, regexp.MustCompile(`(?i)<\s*iframe`)},
	{"cookie_access", CategoryXSS, regexp.MustCompile(`(?i)document\.cookie`)},
	{"dot_dot_slash", CategoryPathTraversal, regexp.MustCompile(`\.\.[/\\]`)},
	{"null_byte", CategoryPathTraversal, regexp.MustCompile("\x00")},
	{"system_file", CategoryPathTraversal, regexp.MustCompile(`(?i)/etc/(passwd|shadow)|win\.ini|boot\.ini`)},
	{"shell_chain", CategoryCommandInjection, regexp.MustCompile(`(?i)[;|]\s*(rm|cat|wget|curl|nc|bash|sh|powershell)\b`)},
	{"subshell", CategoryCommandInjection, regexp.MustCompile("\\$\\(|`")},
}

var scannerAgents = regexp.MustCompile(`(?i)sqlmap|nikto|nmap|masscan|acunetix|zgrab|dirbuster|gobuster|wpscan|nessus|openvas|w3af|havij`)

// PatternDetector flags requests whose decoded path, query or user agent look like
// an attack. It is a static catalogue; it never learns.
type PatternDetector struct {
	patterns []pattern
}

func NewPatternDetector() *PatternDetector {
	return &PatternDetector{patterns: requestPatterns}
}

func (d *PatternDetector) Inspect(path, rawQuery, userAgent string) (*Finding, bool) {
	if f, ok := d.match("path", decode(path, url.PathUnescape)); ok {
		return f, true
	}
	if rawQuery != "" {
		if f, ok := d.match("query", decode(rawQuery, url.QueryUnescape)); ok {
			return f, true
		}
	}
	if userAgent != "" && scannerAgents.MatchString(userAgent) {
		return &Finding{Category: CategoryScanner, Pattern: "scanner_agent", Field: "user_agent"}, true
	}
	return nil, false
}

func (d *PatternDetector) match(field, input string) (*Finding, bool) {
	for _, p := range d.patterns {
		if p.re.MatchString(input) {
			return &Finding{Category: p.category, Pattern: p.name, Field: field}, true
		}
	}
	return nil, false
}

// decode unescapes up to twice so double-encoded payloads are seen in clear text.
func decode(s string, unescape func(string) (string, error)) string {
	out := s
	for i := 0; i < 2; i++ {
		next, err := unescape(out)
		if err != nil || next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}
