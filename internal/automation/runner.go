package automation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	maxResponseBytes = 1 << 20
)

// ClaimData is the claim view exposed to templates as .claim.
type ClaimData struct {
	ID            uint   `json:"id"`
	Number        string `json:"number"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	LossType      string `json:"loss_type"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	FeeCents      int64  `json:"fee_cents"`
	AdjusterName  string `json:"adjuster_name"`
	AdjusterEmail string `json:"adjuster_email"`
}

type Result struct {
	Connector   string
	Version     int
	Status      string
	Attempts    int
	FailedStep  string
	Err         error
	ExternalRef string
	Vars        map[string]string
	Duration    time.Duration
}

// StepError describes why a step stopped the run.
type StepError struct {
	Step      string
	Status    int
	Retryable bool
	Err       error
}

func (e *StepError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("step %s: status %d: %v", e.Step, e.Status, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type Runner struct {
	client    *http.Client
	log       *zap.Logger
	lookupEnv func(string) (string, bool)
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() float64
}

func NewRunner(client *http.Client, log *zap.Logger) *Runner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Runner{
		client:    client,
		log:       log,
		lookupEnv: os.LookupEnv,
		sleep:     sleepContext,
		jitter:    rand.Float64,
	}
}

// Run executes the connector steps in order against claim. Every outcome, including
// configuration problems, comes back as a Result; Run never panics on portal data.
func (r *Runner) Run(ctx context.Context, c *Connector, claim ClaimData) *Result {
	started := time.Now()
	res := &Result{
		Connector: c.Name,
		Version:   c.Version,
		Status:    StatusFailed,
		Vars:      make(map[string]string),
	}
	defer func() { res.Duration = time.Since(started) }()

	creds, err := r.credentials(c)
	if err != nil {
		res.FailedStep = "credentials"
		res.Err = err
		return res
	}

	for i := range c.Steps {
		step := &c.Steps[i]
		data := map[string]interface{}{
			"claim":       claim,
			"credentials": creds,
			"vars":        res.Vars,
		}
		for k, v := range res.Vars {
			data[k] = v
		}

		attempts, err := r.runStep(ctx, c, step, data, res.Vars)
		res.Attempts += attempts
		if err != nil {
			res.FailedStep = step.Name
			res.Err = err
			r.log.Warn("connector step failed",
				zap.String("connector", c.Name),
				zap.String("step", step.Name),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			return res
		}
	}

	refVar := c.ReferenceVar
	if refVar == "" {
		refVar = "reference"
	}
	res.ExternalRef = res.Vars[refVar]
	res.Status = StatusSuccess
	return res
}

func (r *Runner) runStep(ctx context.Context, c *Connector, step *Step, data map[string]interface{}, vars map[string]string) (int, error) {
	path, err := render(step.path, data)
	if err != nil {
		return 0, &StepError{Step: step.Name, Err: err}
	}
	body, err := render(step.body, data)
	if err != nil {
		return 0, &StepError{Step: step.Name, Err: err}
	}
	headers := make(map[string]string, len(step.headers))
	for k, tmpl := range step.headers {
		v, err := render(tmpl, data)
		if err != nil {
			return 0, &StepError{Step: step.Name, Err: err}
		}
		headers[k] = v
	}
	url := c.BaseURL + "/" + strings.TrimLeft(path, "/")

	policy := c.Retry
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.backoff(policy, attempt-1)); err != nil {
				return attempt - 1, &StepError{Step: step.Name, Err: err}
			}
		}
		status, respBody, err := r.do(ctx, step.Method, url, headers, body)
		if err != nil {
			lastErr = &StepError{Step: step.Name, Retryable: ctx.Err() == nil, Err: err}
			if ctx.Err() != nil {
				return attempt, lastErr
			}
			continue
		}
		if retryableStatus[status] && !step.expects(status) {
			lastErr = &StepError{Step: step.Name, Status: status, Retryable: true, Err: errors.New(snippet(respBody))}
			continue
		}
		if !step.expects(status) {
			return attempt, &StepError{Step: step.Name, Status: status, Err: errors.New(snippet(respBody))}
		}
		if err := extract(step, respBody, vars); err != nil {
			return attempt, &StepError{Step: step.Name, Status: status, Err: err}
		}
		return attempt, nil
	}
	return policy.MaxAttempts, lastErr
}

func (r *Runner) do(ctx context.Context, method, url string, headers map[string]string, body string) (int, []byte, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request failed: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response failed: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// backoff returns initial * multiplier^(retry-1), capped at the policy maximum, with
// optional symmetric jitter.
func (r *Runner) backoff(p RetryPolicy, retry int) time.Duration {
	d := float64(p.initialBackoff()) * math.Pow(p.Multiplier, float64(retry-1))
	if d > float64(p.maxBackoff()) {
		d = float64(p.maxBackoff())
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (r.jitter()*2 - 1)
	}
	return time.Duration(d)
}

func (r *Runner) credentials(c *Connector) (map[string]string, error) {
	creds := make(map[string]string, len(c.Credentials))
	var missing []string
	for name, envKey := range c.Credentials {
		v, ok := r.lookupEnv(envKey)
		if !ok || v == "" {
			missing = append(missing, envKey)
			continue
		}
		creds[name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return creds, nil
}

func extract(step *Step, body []byte, vars map[string]string) error {
	if len(step.Extract) > 0 || step.SuccessPath != "" {
		if !gjson.ValidBytes(body) {
			return errors.New("response is not valid json")
		}
	}
	if step.SuccessPath != "" && !gjson.GetBytes(body, step.SuccessPath).Bool() {
		return fmt.Errorf("success check %q failed", step.SuccessPath)
	}
	for name, path := range step.Extract {
		v := gjson.GetBytes(body, path)
		if !v.Exists() {
			return fmt.Errorf("extract %s: path %q not found", name, path)
		}
		vars[name] = v.String()
	}
	return nil
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template failed: %w", err)
	}
	return buf.String(), nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	if s == "" {
		s = "empty response"
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
