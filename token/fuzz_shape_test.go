package token

import (
	"strings"
	"testing"
)

// FuzzCheck ensures shape validation never panics and never accepts CR/LF.
func FuzzCheck(f *testing.F) {
	f.Add("")
	f.Add("a.b.c")
	f.Add("a.b.c\n")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzaWQiOiJzMSJ9.sig")
	f.Add(strings.Repeat(".", 3))

	f.Fuzz(func(t *testing.T, input string) {
		err := Check(input, DefaultMaxBytes)
		if err != nil {
			return
		}
		if strings.ContainsAny(input, "\r\n") {
			t.Fatalf("accepted token with CR/LF: %q", input)
		}
		if strings.Count(input, ".") != 2 {
			t.Fatalf("accepted token without three segments: %q", input)
		}
		if len(input) > DefaultMaxBytes {
			t.Fatalf("accepted oversized token of %d bytes", len(input))
		}
	})
}
