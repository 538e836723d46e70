package openai

import (
	"errors"
	"strings"
	"testing"
)

func TestStreamSSEParsesEventsAndData(t *testing.T) {
	body := strings.Join([]string{
		"event: response.output_text.delta",
		`data: {"type":"response.output_text.delta","delta":"Hello"}`,
		"",
		": keepalive",
		"",
		"event: response.output_text.delta",
		`data: {"type":"response.output_text.delta","delta":" world"}`,
		"",
		"data: [DONE]",
		"",
	}, "\n")

	var events []string
	var payloads []string
	err := streamSSE(strings.NewReader(body), func(event, data string) error {
		events = append(events, event)
		payloads = append(payloads, data)
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(payloads), payloads)
	}
	if events[0] != "response.output_text.delta" {
		t.Fatalf("unexpected event name: %q", events[0])
	}
	if payloads[2] != "[DONE]" {
		t.Fatalf("expected [DONE] terminator, got %q", payloads[2])
	}
}

func TestStreamSSEMultiLineData(t *testing.T) {
	body := "data: line one\ndata: line two\n\n"
	var got string
	err := streamSSE(strings.NewReader(body), func(_, data string) error {
		got = data
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if got != "line one\nline two" {
		t.Fatalf("multi-line data joined wrong: %q", got)
	}
}

func TestStreamSSEHandlerErrorAborts(t *testing.T) {
	body := "data: a\n\ndata: b\n\n"
	boom := errors.New("boom")
	calls := 0
	err := streamSSE(strings.NewReader(body), func(_, _ string) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected abort after first event, got %d calls", calls)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
