package services

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestReplySubject(t *testing.T) {
	cases := []struct {
		name    string
		subject string
		want    string
	}{
		{"plain subject", "[AI_REQUEST] deployment question", "Re: [AI_REQUEST] deployment question"},
		{"already prefixed", "Re: [AI_REQUEST] deployment question", "Re: [AI_REQUEST] deployment question"},
		{"lowercase prefix", "re: hello", "re: hello"},
		{"uppercase prefix", "RE: hello", "RE: hello"},
		{"surrounding whitespace", "  hello  ", "Re: hello"},
		{"empty subject", "", "Re: "},
		{"short subject", "Hi", "Re: Hi"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ReplySubject(tc.subject); got != tc.want {
				t.Errorf("ReplySubject(%q) = %q, want %q", tc.subject, got, tc.want)
			}
		})
	}
}

func TestProperty_ReplySubjectNormalization(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// ReplySubject is idempotent: replying to a reply never stacks prefixes
	properties.Property("reply_subject_is_idempotent", prop.ForAll(
		func(subject string) bool {
			once := ReplySubject(subject)
			twice := ReplySubject(once)
			return once == twice
		},
		gen.AlphaString(),
	))

	// The result always carries exactly one leading reply prefix
	properties.Property("result_has_single_reply_prefix", prop.ForAll(
		func(subject string) bool {
			got := ReplySubject(subject)
			if len(got) < 3 || !strings.EqualFold(got[:3], "Re:") {
				return false
			}
			rest := strings.TrimSpace(got[3:])
			return len(rest) < 3 || !strings.EqualFold(rest[:3], "Re:")
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestBuildReplyMessage(t *testing.T) {
	content := buildReplyMessage("owner@example.com", "alice@example.com",
		"Re: [AI_REQUEST] hello", "<original@example.com>", "reply body")

	headerEnd := strings.Index(content, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("message has no header/body separator")
	}
	headers := content[:headerEnd]

	for _, want := range []string{
		"From: owner@example.com",
		"To: alice@example.com",
		"In-Reply-To: <original@example.com>",
		"References: <original@example.com>",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: base64",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q", want)
		}
	}

	if !strings.Contains(headers, "Message-ID: <") {
		t.Error("headers missing generated Message-ID")
	}
	if !strings.Contains(headers, "@example.com>") {
		t.Error("Message-ID should use the sender's domain")
	}
}

func TestBuildReplyMessageWithoutInReplyTo(t *testing.T) {
	content := buildReplyMessage("owner@example.com", "alice@example.com",
		"Re: hello", "", "reply body")

	if strings.Contains(content, "In-Reply-To:") {
		t.Error("In-Reply-To must be omitted when the original has no Message-ID")
	}
	if strings.Contains(content, "References:") {
		t.Error("References must be omitted when the original has no Message-ID")
	}
}

func TestWrapBase64(t *testing.T) {
	long := strings.Repeat("A", 200)
	wrapped := wrapBase64(long)

	for i, line := range strings.Split(wrapped, "\r\n") {
		if len(line) > 76 {
			t.Errorf("line %d exceeds 76 characters: %d", i, len(line))
		}
	}
	if strings.ReplaceAll(wrapped, "\r\n", "") != long {
		t.Error("wrapping must not alter the content")
	}
}
