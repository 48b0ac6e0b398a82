package fulltext_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engine/pkg/memstore/fulltext"
)

func TestParseImplicitAnd(t *testing.T) {
	q, err := fulltext.Parse("budget travel", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"budget", "travel"}, q.MatchedTerms)
}

func TestParsePhraseAndNot(t *testing.T) {
	q, err := fulltext.Parse(`"budget travel" NOT expensive`, 0)
	require.NoError(t, err)
	assert.Contains(t, q.MatchedTerms, "budget travel")
	assert.NotContains(t, q.MatchedTerms, "expensive")
}

func TestParseGroupingAndOr(t *testing.T) {
	q, err := fulltext.Parse("(budget OR finance) travel", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"budget", "finance", "travel"}, q.MatchedTerms)
}

func TestParseSymbolEscape(t *testing.T) {
	q, err := fulltext.Parse("c++ tutorial", 0)
	require.NoError(t, err)
	assert.Contains(t, q.MatchedTerms, "cplusplus")
}

func TestParseTooLong(t *testing.T) {
	_, err := fulltext.Parse(strings.Repeat("a", 10), 5)
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	_, err := fulltext.Parse("   ", 0)
	assert.Error(t, err)
}

func TestParseUnbalancedGrouping(t *testing.T) {
	_, err := fulltext.Parse("(budget travel", 0)
	assert.Error(t, err)
}

func TestRenderDialects(t *testing.T) {
	q, err := fulltext.Parse(`"budget travel" OR finance NOT expensive`, 0)
	require.NoError(t, err)

	pg := fulltext.Render(q, fulltext.DialectPostgres)
	assert.Contains(t, pg, "<->")
	assert.Contains(t, pg, "!")

	sq := fulltext.Render(q, fulltext.DialectSQLiteFTS5)
	assert.Contains(t, sq, "NOT")
	assert.Contains(t, sq, `"budget travel"`)
}
