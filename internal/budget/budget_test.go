package budget

import (
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
)

func TestEstimateTokensFromChars(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 0},
		{1, 1}, // ceil(1/4)=1
		{3, 1},
		{4, 1},
		{5, 2},
		{400, 100},
	}
	for _, c := range cases {
		got := EstimateTokensFromChars(c.in)
		if got != c.want {
			t.Fatalf("EstimateTokensFromChars(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNilEstimatorUsesHeuristic(t *testing.T) {
	var e *Estimator
	if got := e.Count("abcdefgh"); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	// framing 3 + (3 + 2) + (3 + 1)
	if got := e.PromptTokens("abcdefgh", "abc"); got != 12 {
		t.Fatalf("PromptTokens = %d, want 12", got)
	}
}

type countingTransport struct{ calls atomic.Int32 }

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, errors.New("network disabled")
}

func TestEstimatorLoadsEncodingOffline(t *testing.T) {
	rt := &countingTransport{}
	orig := http.DefaultTransport
	http.DefaultTransport = rt
	t.Cleanup(func() { http.DefaultTransport = orig })

	e := NewEstimator("cl100k_base")
	if got := e.Count("hello world"); got != 2 {
		t.Fatalf("Count = %d, want 2 from cl100k_base", got)
	}
	if got := e.PromptTokens("hello world"); got != 8 {
		t.Fatalf("PromptTokens = %d, want 8", got)
	}
	if n := rt.calls.Load(); n != 0 {
		t.Fatalf("encoding load made %d network requests", n)
	}
}

func TestModelContextTokens(t *testing.T) {
	if ModelContextTokens("") != DefaultContextTokens {
		t.Fatal("empty model should default to 8192")
	}
	if ModelContextTokens("gpt-4o") < 100_000 {
		t.Fatal("gpt-4o should be large (~128k)")
	}
	if ModelContextTokens("LLAMA-3.1") < 100_000 {
		t.Fatal("case-insensitive match for llama-3.1 should be ~128k")
	}
	if ModelContextTokens("mystery-512k") != 512_000 {
		t.Fatal("numeric suffix heuristic 512k should map to 512k tokens")
	}
}

func TestRemainingAndFits(t *testing.T) {
	rem := RemainingContext(8192, 768, 4000)
	if rem != 8192-768-4000 {
		t.Fatalf("unexpected remaining %d", rem)
	}
	if !FitsInContext(8192, 768, 4000) {
		t.Fatal("prompt should fit when remaining is positive")
	}
	if RemainingContext(8192, 768, 8000) != 0 {
		t.Fatal("remaining should clamp at 0 on overflow")
	}
	if FitsInContext(8192, 768, 8000) {
		t.Fatal("prompt should not fit when overflowed")
	}
	if RemainingContext(100, -5, 10) != 90 {
		t.Fatal("negative reservation should be treated as zero")
	}
}

func TestHeadroomTokens(t *testing.T) {
	if HeadroomTokens(8192) != 410 {
		t.Fatalf("headroom for 8192 = %d, want 410", HeadroomTokens(8192))
	}
	if HeadroomTokens(1000) != 256 {
		t.Fatalf("small windows should floor to 256")
	}
}
