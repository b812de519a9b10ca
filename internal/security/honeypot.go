package security

import "strings"

var defaultHoneypotPaths = []string{
	"/wp-admin",
	"/wp-login.php",
	"/.env",
	"/.git/config",
	"/phpmyadmin",
	"/xmlrpc.php",
	"/admin.php",
	"/config.php",
}

// Honeypot holds trap paths no legitimate client requests.
type Honeypot struct {
	paths []string
}

func NewHoneypot(extra []string) *Honeypot {
	paths := make([]string, 0, len(defaultHoneypotPaths)+len(extra))
	for _, p := range append(append([]string{}, defaultHoneypotPaths...), extra...) {
		p = strings.ToLower(strings.TrimRight(strings.TrimSpace(p), "/"))
		if p != "" {
			paths = append(paths, p)
		}
	}
	return &Honeypot{paths: paths}
}

// Match is a case-insensitive match on whole path segments.
func (h *Honeypot) Match(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range h.paths {
		if lower == p || strings.HasPrefix(lower, p+"/") {
			return true
		}
	}
	return false
}
