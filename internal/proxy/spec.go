// Package proxy implements the fetch pipeline behind the HTTP surface:
// the request data model, the three fetch strategies, the recovery policy
// and the orchestrator that serializes them against the single browser
// session.
package proxy

import (
	"fmt"
	"sort"
	"strings"
)

// RequestSpec is the validated, immutable description of one fetch
// request.
type RequestSpec struct {
	URL            string            `json:"url"`
	Params         map[string]string `json:"params,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	FormFields     map[string]string `json:"data,omitempty"`
	JSONPayload    map[string]any    `json:"json,omitempty"`
	FormSelector   string            `json:"form_selector,omitempty"`
	SubmitSelector string            `json:"submit_selector,omitempty"`
}

// Validate rejects specs the pipeline cannot act on.
func (s RequestSpec) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// PlanKind is the strategy chosen for a request. Selection happens once,
// at the boundary, so the dispatcher switches on a type-level tag instead
// of re-checking map emptiness.
type PlanKind int

const (
	// PlainGet navigates and captures the markup.
	PlainGet PlanKind = iota
	// JsonHybrid posts the JSON payload out of band, then navigates the
	// browser to capture the rendered result.
	JsonHybrid
	// FormSubmit navigates, fills the named form fields and submits.
	FormSubmit
)

func (k PlanKind) String() string {
	switch k {
	case FormSubmit:
		return "form_submit"
	case JsonHybrid:
		return "json_hybrid"
	default:
		return "plain_get"
	}
}

// Plan derives the strategy for this spec. The branches are mutually
// exclusive and evaluated in fixed priority order: a spec carrying both
// form fields (with both selectors) and a JSON payload takes the form
// path.
func (s RequestSpec) Plan() PlanKind {
	if len(s.FormFields) > 0 && s.FormSelector != "" && s.SubmitSelector != "" {
		return FormSubmit
	}
	if len(s.JSONPayload) > 0 {
		return JsonHybrid
	}
	return PlainGet
}

// TargetURL assembles the final URL: each query param rendered literally
// as key=value and joined with &, appended with ? or & depending on
// whether the base URL already carries a query component. Keys are sorted
// so the result is deterministic. Callers are responsible for
// pre-encoding; no escaping is applied here.
func (s RequestSpec) TargetURL() string {
	return assembleURL(s.URL, s.Params)
}

func assembleURL(base string, params map[string]string) string {
	if len(params) == 0 {
		return base
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	query := strings.Join(pairs, "&")

	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

// FetchResult is the single success shape of the pipeline.
type FetchResult struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

// StatusSuccess is the only status value FetchResult carries.
const StatusSuccess = "success"

func successResult(content string) FetchResult {
	return FetchResult{Status: StatusSuccess, Content: content}
}
