package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"pgregory.net/rapid"
)

type compressorFunc func(ctx context.Context, text string, hints Hints) (string, error)

func (f compressorFunc) Compress(ctx context.Context, text string, hints Hints) (string, error) {
	return f(ctx, text, hints)
}

type fakeModel struct {
	content  string
	err      error
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.content}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog number ")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString(". ")
	}
	return b.String()
}

func TestSummarizeShortPassesThrough(t *testing.T) {
	called := false
	s := New(compressorFunc(func(context.Context, string, Hints) (string, error) {
		called = true
		return "nope", nil
	}))

	raw := strings.Repeat("a", DefaultThreshold-1)
	res := s.Summarize(context.Background(), raw, "math")
	assert.Equal(t, raw, res.Digest)
	assert.False(t, res.Compressed)
	assert.False(t, res.Degraded)
	assert.False(t, called)
}

func TestSummarizeUsesCompressor(t *testing.T) {
	var got Hints
	s := New(compressorFunc(func(_ context.Context, _ string, hints Hints) (string, error) {
		got = hints
		return "  Paris is the capital of France (https://example.com).  ", nil
	}))

	res := s.Summarize(context.Background(), longText(30), "web_search")
	assert.Equal(t, "Paris is the capital of France (https://example.com).", res.Digest)
	assert.True(t, res.Compressed)
	assert.False(t, res.Degraded)
	assert.Equal(t, DefaultBudget, got.Budget)
	assert.Contains(t, got.Focus, "URLs")
}

func TestSummarizeFallsBack(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	tests := []struct {
		name       string
		compressor Compressor
		timeout    time.Duration
	}{
		{
			name: "error",
			compressor: compressorFunc(func(context.Context, string, Hints) (string, error) {
				return "", errors.New("rate limited")
			}),
		},
		{
			name: "empty",
			compressor: compressorFunc(func(context.Context, string, Hints) (string, error) {
				return "   ", nil
			}),
		},
		{
			name: "degenerate",
			compressor: compressorFunc(func(context.Context, string, Hints) (string, error) {
				return "... --- ...", nil
			}),
		},
		{
			name: "over budget",
			compressor: compressorFunc(func(context.Context, string, Hints) (string, error) {
				return strings.Repeat("word ", 200), nil
			}),
		},
		{
			name: "timeout",
			compressor: compressorFunc(func(ctx context.Context, _ string, _ Hints) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}),
			timeout: 10 * time.Millisecond,
		},
		{
			name: "late answer after timeout",
			compressor: compressorFunc(func(ctx context.Context, _ string, _ Hints) (string, error) {
				<-ctx.Done()
				return "fine summary", nil
			}),
			timeout: 10 * time.Millisecond,
		},
		{
			name: "ignores context",
			compressor: compressorFunc(func(context.Context, string, Hints) (string, error) {
				<-block
				return "too late", nil
			}),
			timeout: 20 * time.Millisecond,
		},
		{
			name: "panic",
			compressor: compressorFunc(func(context.Context, string, Hints) (string, error) {
				panic("sdk bug")
			}),
		},
	}

	raw := longText(40)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{}
			if tt.timeout > 0 {
				opts = append(opts, WithTimeout(tt.timeout))
			}
			s := New(tt.compressor, opts...)

			start := time.Now()
			res := s.Summarize(context.Background(), raw, "code")
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.True(t, res.Degraded)
			assert.False(t, res.Compressed)
			assert.Equal(t, Truncate(raw, DefaultBudget), res.Digest)
			assert.LessOrEqual(t, utf8.RuneCountInString(res.Digest), DefaultBudget)
		})
	}
}

func TestCompressReportsPanic(t *testing.T) {
	s := New(compressorFunc(func(context.Context, string, Hints) (string, error) {
		panic("sdk bug")
	}))
	_, err := s.compress(context.Background(), longText(40), Hints{Budget: DefaultBudget})
	require.ErrorIs(t, err, ErrCompressorPanic)
	assert.Contains(t, err.Error(), "sdk bug")
}

func TestWithBudgetIgnoresTooSmall(t *testing.T) {
	assert.Equal(t, DefaultBudget, New(nil, WithBudget(MinBudget-1)).Budget())
	assert.Equal(t, MinBudget, New(nil, WithBudget(MinBudget)).Budget())

	d := New(nil, WithBudget(MinBudget), WithThreshold(10)).Summarize(context.Background(), longText(5), "math").Digest
	assert.True(t, strings.HasSuffix(d, Marker), d)
	assert.LessOrEqual(t, utf8.RuneCountInString(d), MinBudget)
}

func TestSummarizeWithoutCompressorIsNotDegraded(t *testing.T) {
	s := New(nil, WithBudget(120), WithThreshold(200))
	res := s.Summarize(context.Background(), longText(10), "math")
	assert.False(t, res.Degraded)
	assert.LessOrEqual(t, utf8.RuneCountInString(res.Digest), 120)
	assert.True(t, strings.HasSuffix(res.Digest, Marker))
}

func TestTruncate(t *testing.T) {
	t.Run("keeps whole sentences", func(t *testing.T) {
		text := "First sentence here. Second one! Third? " + strings.Repeat("filler ", 20)
		got := Truncate(text, 50)
		assert.Equal(t, "First sentence here. Second one! Third?"+Marker, got)
	})

	t.Run("blank line is a boundary", func(t *testing.T) {
		text := "Heading without stop\n\n" + strings.Repeat("body ", 30)
		assert.Equal(t, "Heading without stop"+Marker, Truncate(text, 40))
	})

	t.Run("word boundary when no sentence fits", func(t *testing.T) {
		text := strings.Repeat("alpha beta gamma ", 10)
		got := Truncate(text, 30)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), 30)
		assert.True(t, strings.HasSuffix(got, Marker))
		body := strings.TrimSuffix(got, Marker)
		for _, w := range strings.Fields(body) {
			assert.Contains(t, []string{"alpha", "beta", "gamma"}, w)
		}
	})

	t.Run("short input unchanged", func(t *testing.T) {
		assert.Equal(t, "tiny.", Truncate("tiny.", 10))
	})

	t.Run("multibyte counted as runes", func(t *testing.T) {
		text := strings.Repeat("日本語の文です。 ", 50)
		got := Truncate(text, 25)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), 25)
		assert.True(t, utf8.ValidString(got))
	})
}

// Property 3: output shorter than the threshold is returned unchanged.
func TestSummarizeBelowThresholdProperty(t *testing.T) {
	s := New(compressorFunc(func(context.Context, string, Hints) (string, error) {
		return "", errors.New("must not be called")
	}))
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringN(0, DefaultThreshold-1, -1).Draw(t, "raw")
		res := s.Summarize(context.Background(), raw, "math")
		if res.Digest != raw {
			t.Fatalf("digest changed short input")
		}
	})
}

// Property 4: long output always yields a digest within budget, and without a
// compressor it ends at a sentence boundary or the marker.
func TestSummarizeLongOutputBoundedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		budget := rapid.IntRange(10, DefaultBudget).Draw(t, "budget")
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,12}[.!?]?`), 200, 400).Draw(t, "words")
		raw := strings.Join(words, " ")
		if utf8.RuneCountInString(raw) < DefaultThreshold {
			raw += " " + strings.Repeat("padding word. ", DefaultThreshold/10)
		}

		var compressor Compressor
		if rapid.Bool().Draw(t, "withCompressor") {
			answer := rapid.StringN(0, 2*budget, -1).Draw(t, "answer")
			compressor = compressorFunc(func(context.Context, string, Hints) (string, error) {
				return answer, nil
			})
		}

		s := New(compressor, WithBudget(budget))
		res := s.Summarize(context.Background(), raw, "web_search")
		if n := utf8.RuneCountInString(res.Digest); n > budget {
			t.Fatalf("digest length %d exceeds budget %d", n, budget)
		}
		if !res.Compressed {
			d := res.Digest
			if !strings.HasSuffix(d, Marker) && !strings.HasSuffix(d, ".") && !strings.HasSuffix(d, "!") && !strings.HasSuffix(d, "?") {
				t.Fatalf("fallback digest ends mid-sentence: %q", d)
			}
		}
	})
}

func TestLLMCompressor(t *testing.T) {
	model := &fakeModel{content: "condensed"}
	c := NewLLMCompressor(model)

	out, err := c.Compress(context.Background(), "long text", Hints{Focus: FocusFor("code"), Budget: 300})
	require.NoError(t, err)
	assert.Equal(t, "condensed", out)

	require.Len(t, model.messages, 2)
	system := model.messages[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "under 300 characters")
	assert.Contains(t, system, "error messages")
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Equal(t, "Summarize this:\n\nlong text", human)
}

func TestLLMCompressorErrors(t *testing.T) {
	_, err := NewLLMCompressor(&fakeModel{err: errors.New("boom")}).Compress(context.Background(), "x", Hints{})
	assert.ErrorContains(t, err, "boom")

	_, err = (&LLMCompressor{}).Compress(context.Background(), "x", Hints{})
	assert.Error(t, err)
}
