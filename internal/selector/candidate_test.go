package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortCandidatesCanonicalOrder(t *testing.T) {
	shuffled := []Candidate{
		{Kind: KindXPath, Value: "//div[3]/button"},
		{Kind: KindText, Value: "Submit"},
		{Kind: KindTestID, Value: "submit-btn"},
		{Kind: KindCSS, Value: "form > button.primary"},
		{Kind: KindID, Value: "submit"},
		{Kind: KindRoleAndText, Role: "button", Text: "Submit"},
		{Kind: KindAriaLabel, Value: "Submit form"},
		{Kind: KindName, Value: "submit"},
	}

	sorted := SortCandidates(shuffled)
	want := []Kind{KindTestID, KindID, KindName, KindAriaLabel, KindRoleAndText, KindText, KindCSS, KindXPath}
	require.Len(t, sorted, len(want))
	for i, k := range want {
		assert.Equal(t, k, sorted[i].Kind, "position %d", i)
	}

	// input slice is untouched
	assert.Equal(t, KindXPath, shuffled[0].Kind)
	assert.True(t, InCanonicalOrder(sorted))
	assert.False(t, InCanonicalOrder(shuffled))
}

func TestSortCandidatesStableWithinKind(t *testing.T) {
	cands := []Candidate{
		{Kind: KindCSS, Value: "first"},
		{Kind: KindCSS, Value: "second"},
	}
	sorted := SortCandidates(cands)
	assert.Equal(t, "first", sorted[0].Value)
	assert.Equal(t, "second", sorted[1].Value)
}

func TestQueryTranslation(t *testing.T) {
	cases := []struct {
		name      string
		candidate Candidate
		wantQuery string
		wantXPath bool
	}{
		{
			name:      "testid compiles to data attribute",
			candidate: Candidate{Kind: KindTestID, Value: "submit-btn"},
			wantQuery: `[data-testid="submit-btn"]`,
		},
		{
			name:      "simple id uses hash shorthand",
			candidate: Candidate{Kind: KindID, Value: "login"},
			wantQuery: "#login",
		},
		{
			name:      "awkward id falls back to attribute form",
			candidate: Candidate{Kind: KindID, Value: "user:email"},
			wantQuery: `[id="user:email"]`,
		},
		{
			name:      "name attribute",
			candidate: Candidate{Kind: KindName, Value: "q"},
			wantQuery: `[name="q"]`,
		},
		{
			name:      "aria label",
			candidate: Candidate{Kind: KindAriaLabel, Value: "Close dialog"},
			wantQuery: `[aria-label="Close dialog"]`,
		},
		{
			name:      "css passes through verbatim",
			candidate: Candidate{Kind: KindCSS, Value: "form > button.primary"},
			wantQuery: "form > button.primary",
		},
		{
			name:      "xpath passes through verbatim",
			candidate: Candidate{Kind: KindXPath, Value: "//div[3]/button"},
			wantQuery: "//div[3]/button",
			wantXPath: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, byXPath, err := tc.candidate.Query()
			require.NoError(t, err)
			assert.Equal(t, tc.wantQuery, query)
			assert.Equal(t, tc.wantXPath, byXPath)
		})
	}
}

func TestRoleAndTextQueryMatchesImplicitRole(t *testing.T) {
	c := Candidate{Kind: KindRoleAndText, Role: "button", Text: "Submit"}
	query, byXPath, err := c.Query()
	require.NoError(t, err)
	assert.True(t, byXPath)
	assert.Contains(t, query, `@role="button"`)
	assert.Contains(t, query, "self::button")
	assert.Contains(t, query, `"Submit"`)
}

func TestTextQueryUsesXPathContains(t *testing.T) {
	c := Candidate{Kind: KindText, Value: "Add to cart"}
	query, byXPath, err := c.Query()
	require.NoError(t, err)
	assert.True(t, byXPath)
	assert.True(t, strings.HasPrefix(query, "//*"))
	assert.Contains(t, query, "contains(normalize-space(text())")
}

func TestQueryRejectsMalformedCandidates(t *testing.T) {
	bad := []Candidate{
		{Kind: "zorp", Value: "x"},
		{Kind: KindTestID, Value: "  "},
		{Kind: KindRoleAndText, Role: "button"},
	}
	for _, c := range bad {
		_, _, err := c.Query()
		assert.Error(t, err, "candidate %v", c)
	}
}

func TestXPathLiteralHandlesMixedQuotes(t *testing.T) {
	assert.Equal(t, `"plain"`, xpathLiteral("plain"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))

	mixed := xpathLiteral(`it's "quoted"`)
	assert.True(t, strings.HasPrefix(mixed, "concat("))
	assert.Contains(t, mixed, `'"'`)
}
