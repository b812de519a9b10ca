// Package automation runs declarative firm-portal connectors. A connector is a TOML file
// describing an ordered list of HTTP steps, templated over claim data, credentials and
// values extracted from earlier responses.
package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
)

type RetryPolicy struct {
	MaxAttempts      int     `toml:"max_attempts" json:"max_attempts"`
	InitialBackoffMS int     `toml:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMS     int     `toml:"max_backoff_ms" json:"max_backoff_ms"`
	Multiplier       float64 `toml:"multiplier" json:"multiplier"`
	Jitter           float64 `toml:"jitter" json:"jitter"`
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoffMS <= 0 {
		p.InitialBackoffMS = 500
	}
	if p.MaxBackoffMS <= 0 {
		p.MaxBackoffMS = 10000
	}
	if p.MaxBackoffMS < p.InitialBackoffMS {
		p.MaxBackoffMS = p.InitialBackoffMS
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	return p
}

func (p RetryPolicy) initialBackoff() time.Duration {
	return time.Duration(p.InitialBackoffMS) * time.Millisecond
}

func (p RetryPolicy) maxBackoff() time.Duration {
	return time.Duration(p.MaxBackoffMS) * time.Millisecond
}

type Step struct {
	Name         string            `toml:"name"`
	Method       string            `toml:"method"`
	Path         string            `toml:"path"`
	Headers      map[string]string `toml:"headers"`
	Body         string            `toml:"body"`
	ExpectStatus []int             `toml:"expect_status"`
	Extract      map[string]string `toml:"extract"`
	SuccessPath  string            `toml:"success_path"`

	path    *template.Template
	body    *template.Template
	headers map[string]*template.Template
}

type Connector struct {
	Name         string            `toml:"name"`
	Version      int               `toml:"version"`
	FirmCode     string            `toml:"firm_code"`
	Description  string            `toml:"description"`
	BaseURL      string            `toml:"base_url"`
	ReferenceVar string            `toml:"reference_var"`
	Credentials  map[string]string `toml:"credentials"`
	Retry        RetryPolicy       `toml:"retry"`
	Steps        []Step            `toml:"steps"`
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

var templateFuncs = template.FuncMap{
	"json": func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	"cents": func(v int64) string {
		return fmt.Sprintf("%d.%02d", v/100, v%100)
	},
	"pathescape":  url.PathEscape,
	"queryescape": url.QueryEscape,
	"upper":       strings.ToUpper,
	"lower":       strings.ToLower,
}

// Parse decodes and validates one connector definition.
func Parse(data []byte) (*Connector, error) {
	var c Connector
	meta, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("decode connector failed: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("connector has unknown keys: %v", undecoded)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Connector) compile() error {
	var errs []error
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Version <= 0 {
		errs = append(errs, errors.New("version must be positive"))
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("base_url %q must be http(s)", c.BaseURL))
	}
	if len(c.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	c.Retry = c.Retry.withDefaults()

	seen := make(map[string]bool, len(c.Steps))
	for i := range c.Steps {
		s := &c.Steps[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("step_%d", i+1)
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("step %s: duplicate name", s.Name))
		}
		seen[s.Name] = true
		s.Method = strings.ToUpper(strings.TrimSpace(s.Method))
		if s.Method == "" {
			s.Method = http.MethodPost
		}
		if !allowedMethods[s.Method] {
			errs = append(errs, fmt.Errorf("step %s: method %q not allowed", s.Name, s.Method))
		}
		var err error
		if s.path, err = newTemplate(s.Name+".path", s.Path); err != nil {
			errs = append(errs, err)
		}
		if s.body, err = newTemplate(s.Name+".body", s.Body); err != nil {
			errs = append(errs, err)
		}
		s.headers = make(map[string]*template.Template, len(s.Headers))
		for k, v := range s.Headers {
			tmpl, err := newTemplate(s.Name+".header."+k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.headers[k] = tmpl
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("connector %q invalid: %w", c.Name, err)
	}
	return nil
}

func newTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s failed: %w", name, err)
	}
	return tmpl, nil
}

func (s *Step) expects(status int) bool {
	if len(s.ExpectStatus) == 0 {
		return status >= 200 && status < 300
	}
	for _, want := range s.ExpectStatus {
		if want == status {
			return true
		}
	}
	return false
}
