package goftp

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzExpandPath tests the ExpandPath function with random inputs.
func FuzzExpandPath(f *testing.F) {
	seeds := []string{
		"",
		"~",
		"~/",
		"~/.ssh/id_rsa",
		"/absolute/path",
		"relative/path",
		"~user/path",
		"~/../../../etc/passwd",
		strings.Repeat("a", 10000),
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		result := ExpandPath(input)

		if strings.HasPrefix(input, "~") && result == "" {
			t.Errorf("ExpandPath(%q) returned empty string", input)
		}

		// Non-tilde paths are returned unchanged.
		if len(input) > 0 && input[0] != '~' && result != input {
			t.Errorf("ExpandPath(%q) = %q, expected unchanged", input, result)
		}
	})
}

// FuzzSplitSegments checks that segments are never empty and never contain
// a separator, and that joining them back yields the cleaned path.
func FuzzSplitSegments(f *testing.F) {
	seeds := []string{"", "/", "//", "/a/b/c", "a//b", "///x///", strings.Repeat("/seg", 200)}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		segments := SplitSegments(input)
		for _, s := range segments {
			if s == "" {
				t.Fatalf("SplitSegments(%q) produced an empty segment", input)
			}
			if strings.Contains(s, "/") {
				t.Fatalf("SplitSegments(%q) produced segment %q containing a separator", input, s)
			}
		}

		joined := strings.Join(segments, "/")
		if want := strings.Join(strings.FieldsFunc(input, func(r rune) bool { return r == '/' }), "/"); joined != want {
			t.Errorf("SplitSegments(%q) joined = %q, want %q", input, joined, want)
		}
	})
}

// FuzzTranscodeRoundTrip checks that valid UTF-8 survives a trip through
// GBK and back whenever GBK can represent it.
func FuzzTranscodeRoundTrip(f *testing.F) {
	seeds := []string{"", "plain", "报表/2024", "naïve", "日本語", "éè"}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		if !utf8.ValidString(input) {
			t.Skip()
		}

		same, err := Transcode([]byte(input), "UTF-8", "UTF-8")
		if err != nil || string(same) != input {
			t.Fatalf("identity Transcode(%q) = %q, %v", input, same, err)
		}

		encoded, err := Transcode([]byte(input), "UTF-8", "GBK")
		if err != nil {
			// Not every rune exists in GBK.
			return
		}
		decoded, err := Transcode(encoded, "GBK", "UTF-8")
		if err != nil {
			t.Fatalf("decode of %x failed: %v", encoded, err)
		}
		if string(decoded) != input {
			t.Errorf("round trip of %q = %q", input, decoded)
		}
	})
}

// FuzzConfigValidation checks that defaults and validation never panic.
func FuzzConfigValidation(f *testing.F) {
	f.Add("", 0, "", "")
	f.Add("localhost", 21, "anonymous", "UTF-8")
	f.Add("192.168.1.1", 2121, "deploy", "GBK")
	f.Add(strings.Repeat("a", 1000), 65535, strings.Repeat("b", 100), "no-such-charset")
	f.Add("host\x00with\x00nulls", -1, "user", "")

	f.Fuzz(func(t *testing.T, host string, port int, user, encoding string) {
		config := Config{
			Host:     host,
			Port:     port,
			User:     user,
			Encoding: encoding,
		}

		_ = config.WithDefaults().Validate()
	})
}
