package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderVerificationTemplate(t *testing.T) {
	data := VerificationData{
		AppName:         "OrgFlow",
		UserName:        "Test User",
		VerificationURL: "https://example.com/verify?token=abc123",
	}

	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "OrgFlow") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/verify?token=abc123") {
		t.Error("template should contain verification URL")
	}
}

func TestRenderDecisionNeededTemplate(t *testing.T) {
	data := DecisionNeededData{
		AppName:       "OrgFlow",
		ApproverName:  "Alice",
		RequestTitle:  "Remote work arrangement",
		RequesterName: "Bob",
		RequestURL:    "https://example.com/requests/req_1",
	}

	html, err := renderTemplate(decisionNeededEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Alice") {
		t.Error("template should contain approver name")
	}
	if !strings.Contains(html, "Remote work arrangement") {
		t.Error("template should contain request title")
	}
	if !strings.Contains(html, "https://example.com/requests/req_1") {
		t.Error("template should contain request URL")
	}
}

func TestRenderDecisionMadeTemplate(t *testing.T) {
	data := DecisionMadeData{
		AppName:      "OrgFlow",
		UserName:     "Bob",
		RequestTitle: "Remote work arrangement",
		Outcome:      "approved",
		DeciderName:  "Alice",
		RequestURL:   "https://example.com/requests/req_1",
	}

	html, err := renderTemplate(decisionMadeEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Bob") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "approved") {
		t.Error("template should contain outcome")
	}
	if !strings.Contains(html, "Alice") {
		t.Error("template should contain decider name")
	}
}
