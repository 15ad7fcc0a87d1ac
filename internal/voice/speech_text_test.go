package voice

import "testing"

func TestSanitizeSpeechText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   \n\t ", ""},
		{"Hi there! 👋 How can I help?", "Hi there! How can I help?"},
		{"That's **really** _important_ / ok.", "That's really important ok."},
		{"See [the status page](https://status.example.com) for updates.", "See the status page for updates."},
		{"Visit https://example.com/a?b=c now", "Visit now"},
		{"```go\nfmt.Println(1)\n```\nRun `go test` then ✅ done", "Run then done"},
		{"## Steps\n1. open\n2. close", "Steps 1. open 2. close"},
		{"a < b | c ~ d", "a b c d"},
		{"Wait...***what", "Wait... what"},
	}

	for _, tc := range cases {
		if got := SanitizeSpeechText(tc.in); got != tc.want {
			t.Fatalf("SanitizeSpeechText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeSpeechTextKeepsLinkLabelWithoutURL(t *testing.T) {
	got := SanitizeSpeechText("[docs](http://x.io/y) and [faq](http://x.io/z)")
	if got != "docs and faq" {
		t.Fatalf("SanitizeSpeechText() = %q, want %q", got, "docs and faq")
	}
}
