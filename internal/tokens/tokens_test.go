package tokens

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alphabet = []rune("abcdefghij klmnop\n\t{}();=.,_ äöüß日本語🙂")

func randomText(r *rand.Rand, maxLen int) string {
	n := r.Intn(maxLen + 1)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteRune(alphabet[r.Intn(len(alphabet))])
	}
	return sb.String()
}

// checkTruncation asserts the truncation contract for one accountant.
func checkTruncation(t *testing.T, acc Accountant, seed int64, rounds int) {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	for i := 0; i < rounds; i++ {
		text := randomText(r, 400)
		n := r.Intn(60) - 5

		got := acc.Truncate(text, n)
		require.True(t, strings.HasPrefix(text, got), "truncate must return a prefix")
		if n <= 0 {
			require.Empty(t, got)
			continue
		}
		require.LessOrEqual(t, acc.Count(got), n, "count(truncate(text, %d)) exceeded limit", n)
		require.Equal(t, got, acc.Truncate(got, n), "truncate must be idempotent")
		if acc.Count(text) <= n {
			require.Equal(t, text, got)
		}
	}
}

func TestHeuristicCount(t *testing.T) {
	h := Heuristic{}
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"one rune", "a", 1},
		{"exact group", "abcd", 1},
		{"partial group rounds up", "hello world", 3},
		{"multibyte counted by rune", "日本語日本", 2},
		{"long", strings.Repeat("a", 4000), 1000},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, h.Count(c.in))
		})
	}
}

func TestHeuristicTruncate(t *testing.T) {
	h := Heuristic{}
	text := strings.Repeat("abcd ", 1000)

	trunc := h.Truncate(text, 300)
	assert.Equal(t, 300, h.Count(trunc))
	assert.Len(t, trunc, 1200)

	assert.Equal(t, "", h.Truncate("", 10))
	assert.Equal(t, "", h.Truncate(text, 0))
	assert.Equal(t, "", h.Truncate(text, -3))
	assert.Equal(t, "short", h.Truncate("short", 2))
	assert.Equal(t, "日本語🙂", h.Truncate("日本語🙂日本語", 1))
}

func TestHeuristicTruncationProperties(t *testing.T) {
	checkTruncation(t, Heuristic{}, 42, 2000)
}

func TestTiktokenTruncationProperties(t *testing.T) {
	tk, err := NewTiktoken("openai/gpt-4o-mini")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	assert.Contains(t, tk.Name(), "tiktoken:")
	assert.Equal(t, 0, tk.Count(""))
	assert.Positive(t, tk.Count("func main() { fmt.Println(\"hi\") }"))
	checkTruncation(t, tk, 7, 300)
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", normalizeModel("openai/gpt-4o-mini"))
	assert.Equal(t, "deepseek-r1", normalizeModel("deepseek/deepseek-r1:free"))
	assert.Equal(t, "gpt-4", normalizeModel(" gpt-4 "))
	assert.Equal(t, "", normalizeModel(""))
}

func TestTrimPartialRune(t *testing.T) {
	euro := "€" // 3 bytes
	assert.Equal(t, "ab", trimPartialRune("ab"+euro[:2]))
	assert.Equal(t, "ab"+euro, trimPartialRune("ab"+euro))
	assert.Equal(t, "", trimPartialRune(euro[:1]))
}

type countingAccountant struct {
	Heuristic
	calls int
}

func (c *countingAccountant) Count(text string) int {
	c.calls++
	return c.Heuristic.Count(text)
}

func TestCachedMemoizesCount(t *testing.T) {
	inner := &countingAccountant{}
	acc := Cached(inner, 8)

	for i := 0; i < 5; i++ {
		assert.Equal(t, 3, acc.Count("hello world"))
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "heuristic", acc.Name())
	assert.Equal(t, "hell", acc.Truncate("hello world", 1))
}

func TestForModelAlwaysReturnsAccountant(t *testing.T) {
	acc := ForModel("anthropic/claude-3.5-sonnet")
	require.NotNil(t, acc)
	checkTruncation(t, acc, 3, 100)
}
