package executor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
	"github.com/apiflow-dev/apiflow-runner/pkg/env"
	"github.com/apiflow-dev/apiflow-runner/pkg/flow"
)

// DefaultTimeout applies when neither the flow config nor the runner sets one.
const DefaultTimeout = 30 * time.Second

// defaultHeaders are filled in for any header not already set by the config
// or the step. Requests without a realistic browser surface get rejected by
// bot-detection middleware on enough targets that this is a hard requirement,
// not cosmetics.
var defaultHeaders = map[string]string{
	"Accept":             "application/json, text/plain, */*",
	"Accept-Language":    "en-US,en;q=0.9",
	"Connection":         "keep-alive",
	"Cache-Control":      "no-cache",
	"sec-ch-ua":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"macOS"`,
	"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// StepExecutor turns one resolved action step into a
// request/response/verify/extract cycle.
type StepExecutor struct {
	client      *resty.Client
	environment *env.Environment
}

// NewStepExecutor creates a StepExecutor bound to the run's environment.
func NewStepExecutor(environment *env.Environment) *StepExecutor {
	client := resty.New().
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetDoNotParseResponse(false)
	return &StepExecutor{
		client:      client,
		environment: environment,
	}
}

// Execute runs a single action step. Timeout comes from cfg.Timeout composed
// with ctx: whichever fires first aborts the request. The environment is
// mutated by extract; nothing else escapes.
func (se *StepExecutor) Execute(ctx context.Context, step flow.TestStep, cfg flow.Config, depth int) *core.StepResult {
	result := &core.StepResult{
		Name:      se.environment.Interpolate(step.Name),
		Depth:     depth,
		Status:    core.StatusRunning,
		StartTime: time.Now(),
	}

	if ctx.Err() != nil {
		se.finish(result, core.StatusCancelled, core.ErrCancelled.Message, core.ErrCategoryCancelled)
		return result
	}

	// 1. Resolve the step against the environment.
	method := strings.ToUpper(se.environment.Interpolate(step.Method))
	if method == "" {
		method = "GET"
	}
	url := resolveURL(se.environment.Interpolate(step.URL), cfg.BaseURL)

	// 2. Merge headers: config first, then step, then realistic defaults for
	// anything still unset (case-insensitive).
	headers := mergeHeaders(cfg.Headers, step.Headers)
	for k, v := range headers {
		headers[k] = se.environment.Interpolate(v)
	}

	var body []byte
	if step.Body != nil && method != "GET" && method != "HEAD" {
		var err error
		body, err = encodeBody(se.environment.DeepInterpolate(step.Body))
		if err != nil {
			se.finish(result, core.StatusFailed, fmt.Sprintf("invalid request body: %v", err), core.ErrCategoryConfig)
			return result
		}
		if body != nil && headerValue(headers, "Content-Type") == "" {
			headers["Content-Type"] = "application/json"
		}
	}

	// GET/HEAD must go out with neither a body nor a Content-Type, whatever
	// the step declared. Not overridable.
	if method == "GET" || method == "HEAD" {
		deleteHeader(headers, "Content-Type")
	}

	fillDefaultHeaders(headers)

	result.Request = &core.RequestSnapshot{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    string(body),
	}

	// 3. Issue the request with an abortable timeout.
	timeout := DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := se.client.R().SetContext(reqCtx).SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	responseTime := time.Since(result.StartTime)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			se.finish(result, core.StatusCancelled, core.ErrCancelled.Message, core.ErrCategoryCancelled)
		case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
			se.finish(result, core.StatusFailed,
				fmt.Sprintf("request timed out after %s", timeout), core.ErrCategoryTimeout)
		default:
			se.finish(result, core.StatusFailed,
				fmt.Sprintf("request failed: %v", err), core.ErrCategoryNetwork)
		}
		return result
	}

	// 4. Decode the response.
	rawBody, err := decodeBody(resp.Body(), resp.Header().Get("Content-Encoding"))
	if err != nil {
		se.finish(result, core.StatusFailed,
			fmt.Sprintf("failed to decode response body: %v", err), core.ErrCategoryNetwork)
		return result
	}
	displayBody := formatBody(rawBody, resp.Header().Get("Content-Type"))

	respHeaders := make(map[string]string, len(resp.Header()))
	for k := range resp.Header() {
		respHeaders[k] = resp.Header().Get(k)
	}
	result.Response = &core.ResponseSnapshot{
		Status:  resp.StatusCode(),
		Headers: respHeaders,
		Body:    displayBody,
	}

	// 5. Verify, then extract against the same response.
	if err := se.verify(step.Verify, resp.StatusCode(), responseTime, rawBody); err != nil {
		se.finish(result, core.StatusFailed, err.Error(), core.ErrCategoryVerification)
		return result
	}

	if err := se.environment.Extract(step.Extract, rawBody); err != nil {
		se.finish(result, core.StatusFailed,
			fmt.Sprintf("extraction failed: %v", err), core.ErrCategoryVerification)
		return result
	}

	se.finish(result, core.StatusPassed, "", core.ErrCategoryNone)
	return result
}

// verify checks every entry of the step's verify block. Expected values are
// resolved directly against the environment so a {{var}} expectation compares
// against the underlying value, not a stringified rendering of it.
func (se *StepExecutor) verify(spec map[string]any, status int, responseTime time.Duration, body []byte) error {
	for key, expected := range spec {
		switch {
		case key == "status":
			want, ok := asInt(expected)
			if !ok || status != want {
				return &core.VerificationError{Path: "status", Expected: expected, Actual: status}
			}

		case key == "responseTime":
			limit, ok := asInt(expected)
			if ok && responseTime.Milliseconds() > int64(limit) {
				return &core.VerificationError{
					Path:     "responseTime",
					Expected: fmt.Sprintf("<= %dms", limit),
					Actual:   fmt.Sprintf("%dms", responseTime.Milliseconds()),
				}
			}

		case strings.HasPrefix(key, "body."):
			actual, found := env.ResolvePath(body, key)
			want := se.resolveExpected(expected)
			if !found || !looseEqual(want, actual) {
				if !found {
					actual = "<missing>"
				}
				return &core.VerificationError{Path: key, Expected: want, Actual: actual}
			}
		}
	}
	return nil
}

// resolveExpected resolves an expected value. A value that is exactly one
// placeholder degrades to the raw environment value so typed comparison
// stays possible; anything else goes through plain interpolation.
func (se *StepExecutor) resolveExpected(expected any) any {
	s, ok := expected.(string)
	if !ok {
		return expected
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		name := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if v, found := se.environment.Get(name); found {
			return v
		}
	}
	return se.environment.Interpolate(s)
}

func (se *StepExecutor) finish(result *core.StepResult, status core.Status, errMsg string, category core.ErrorCategory) {
	result.Status = status
	result.Error = errMsg
	result.Category = category
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
}

// resolveURL joins a relative URL onto the base URL; absolute URLs pass
// through untouched.
func resolveURL(url, baseURL string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if baseURL == "" {
		return url
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(url, "/")
}

func mergeHeaders(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		deleteHeader(merged, k)
		merged[k] = v
	}
	return merged
}

// headerValue looks up a header case-insensitively.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// deleteHeader removes a header case-insensitively.
func deleteHeader(headers map[string]string, name string) {
	for k := range headers {
		if strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
}

func fillDefaultHeaders(headers map[string]string) {
	for k, v := range defaultHeaders {
		if headerValue(headers, k) == "" {
			headers[k] = v
		}
	}
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case nil:
		return nil, nil
	default:
		return json.Marshal(v)
	}
}

// decodeBody inflates gzip/deflate-encoded bodies before text decoding.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	encoding := strings.ToLower(contentEncoding)
	switch {
	case strings.Contains(encoding, "gzip"):
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			// The transport may already have inflated it.
			return body, nil //nolint:nilerr
		}
		defer r.Close()
		return io.ReadAll(r)
	case strings.Contains(encoding, "deflate"):
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		inflated, err := io.ReadAll(r)
		if err != nil {
			return body, nil //nolint:nilerr
		}
		return inflated, nil
	default:
		return body, nil
	}
}

// formatBody re-serializes JSON responses for stable display, falling back
// to raw text on parse failure.
func formatBody(body []byte, contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
				return string(pretty)
			}
		}
	}
	return string(body)
}

// asInt coerces YAML/JSON scalar representations of a number.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// looseEqual compares with coercion: values of different scalar types are
// equal when their rendered forms match.
func looseEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}
	if ef, eok := asFloat(expected); eok {
		if af, aok := asFloat(actual); aok {
			return ef == af
		}
	}
	return env.FormatValue(expected) == env.FormatValue(actual)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
