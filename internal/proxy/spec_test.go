package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanSelection(t *testing.T) {
	tests := []struct {
		name string
		spec RequestSpec
		want PlanKind
	}{
		{
			name: "bare url takes plain navigation",
			spec: RequestSpec{URL: "http://example.com"},
			want: PlainGet,
		},
		{
			name: "params alone stay on plain navigation",
			spec: RequestSpec{URL: "http://example.com", Params: map[string]string{"a": "1"}},
			want: PlainGet,
		},
		{
			name: "json payload selects hybrid",
			spec: RequestSpec{URL: "http://example.com", JSONPayload: map[string]any{"k": "v"}},
			want: JsonHybrid,
		},
		{
			name: "form fields with both selectors select form",
			spec: RequestSpec{
				URL:            "http://example.com",
				FormFields:     map[string]string{"q": "hello"},
				FormSelector:   "form#s",
				SubmitSelector: "button",
			},
			want: FormSubmit,
		},
		{
			name: "form wins over json when both present",
			spec: RequestSpec{
				URL:            "http://example.com",
				FormFields:     map[string]string{"q": "hello"},
				FormSelector:   "form#s",
				SubmitSelector: "button",
				JSONPayload:    map[string]any{"k": "v"},
			},
			want: FormSubmit,
		},
		{
			name: "form fields without form selector fall through to json",
			spec: RequestSpec{
				URL:            "http://example.com",
				FormFields:     map[string]string{"q": "hello"},
				SubmitSelector: "button",
				JSONPayload:    map[string]any{"k": "v"},
			},
			want: JsonHybrid,
		},
		{
			name: "form fields without submit selector and no json fall through to plain",
			spec: RequestSpec{
				URL:          "http://example.com",
				FormFields:   map[string]string{"q": "hello"},
				FormSelector: "form#s",
			},
			want: PlainGet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Plan())
		})
	}
}

func TestAssembleURL(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		params map[string]string
		want   string
	}{
		{
			name: "appends with question mark",
			base: "http://x",
			params: map[string]string{
				"a": "1",
			},
			want: "http://x?a=1",
		},
		{
			name: "appends with ampersand when query exists",
			base: "http://x?y=2",
			params: map[string]string{
				"a": "1",
			},
			want: "http://x?y=2&a=1",
		},
		{
			name:   "empty params leave the url unchanged",
			base:   "http://x",
			params: nil,
			want:   "http://x",
		},
		{
			name: "multiple params joined in sorted key order",
			base: "http://x",
			params: map[string]string{
				"b": "2",
				"a": "1",
			},
			want: "http://x?a=1&b=2",
		},
		{
			name: "values are joined literally without encoding",
			base: "http://x",
			params: map[string]string{
				"q": "a%20b",
			},
			want: "http://x?q=a%20b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assembleURL(tt.base, tt.params))
		})
	}
}

func TestRequestSpecValidate(t *testing.T) {
	assert.Error(t, RequestSpec{}.Validate())
	assert.Error(t, RequestSpec{URL: "   "}.Validate())
	assert.NoError(t, RequestSpec{URL: "http://example.com"}.Validate())
}
