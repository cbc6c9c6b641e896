package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"punctuation collapsed", "Joe's Pizza & Grill!!", "joe-s-pizza-grill"},
		{"whitespace collapsed", "  Acme   Diner  ", "acme-diner"},
		{"diacritics stripped", "Café São Paulo", "cafe-sao-paulo"},
		{"already clean", "acme", "acme"},
		{"numbers kept", "24/7 Mart", "24-7-mart"},
		{"only punctuation", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, " ")
		})
	}
}

func seedPages(t *testing.T, st store.Store, businessID string, pages []model.BusinessPage) {
	t.Helper()
	for _, p := range pages {
		p.BusinessID = businessID
		require.NoError(t, st.UpsertPage(context.Background(), p, false))
	}
}

func TestCompile_AggregatesPages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b := model.Business{ID: "biz-1", Name: "Acme Diner", Website: "https://acmediner.com", City: "Portland", State: "OR"}
	require.NoError(t, st.UpsertBusiness(ctx, b))
	seedPages(t, st, b.ID, []model.BusinessPage{
		{
			URL:      "https://acmediner.com/",
			PageType: model.PageTypeHome,
			Email:    "info@acmediner.com",
			SocialLinks: []model.SocialLink{
				{Platform: "facebook", URL: "https://facebook.com/acme"},
			},
		},
		{
			URL:      "https://acmediner.com/contact",
			PageType: model.PageTypeContact,
			Email:    "hello@acmediner.com",
			SocialLinks: []model.SocialLink{
				{Platform: "facebook", URL: "https://facebook.com/other"},
				{Platform: "instagram", URL: "https://instagram.com/acme"},
			},
		},
	})

	compiler := NewCompiler(st, t.TempDir())
	artifact, err := compiler.Compile(ctx, b)
	require.NoError(t, err)

	assert.False(t, artifact.Incomplete)
	assert.NotEmpty(t, artifact.Fingerprint)
	assert.Equal(t, "report.md", filepath.Base(artifact.Path))
	assert.Equal(t, "acme-diner", filepath.Base(filepath.Dir(artifact.Path)))

	body, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	content := string(body)

	// Contact page email outranks the home page one.
	assert.Contains(t, content, "Email: hello@acmediner.com")
	// First occurrence per platform wins across pages.
	assert.Contains(t, content, "facebook: https://facebook.com/acme")
	assert.NotContains(t, content, "facebook.com/other")
	assert.Contains(t, content, "instagram: https://instagram.com/acme")
	assert.Contains(t, content, "Pages crawled: 2")
}

func TestCompile_IsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	b := model.Business{ID: "biz-1", Name: "Acme Diner"}
	require.NoError(t, st.UpsertBusiness(ctx, b))

	compiler := NewCompiler(st, t.TempDir())
	first, err := compiler.Compile(ctx, b)
	require.NoError(t, err)
	second, err := compiler.Compile(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestCompile_ZeroPagesIsIncomplete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	b := model.Business{ID: "biz-empty", Name: "Ghost Town Cafe"}
	require.NoError(t, st.UpsertBusiness(ctx, b))

	compiler := NewCompiler(st, t.TempDir())
	artifact, err := compiler.Compile(ctx, b)
	require.NoError(t, err)

	assert.True(t, artifact.Incomplete)
	body, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "incomplete")
}

func TestCompile_CollidingNamesGetDistinctFolders(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	b1 := model.Business{ID: "biz-a", Name: "Acme Diner"}
	b2 := model.Business{ID: "biz-b", Name: "ACME DINER"}
	require.NoError(t, st.UpsertBusiness(ctx, b1))
	require.NoError(t, st.UpsertBusiness(ctx, b2))

	compiler := NewCompiler(st, root)
	a1, err := compiler.Compile(ctx, b1)
	require.NoError(t, err)
	a2, err := compiler.Compile(ctx, b2)
	require.NoError(t, err)

	assert.NotEqual(t, filepath.Dir(a1.Path), filepath.Dir(a2.Path))
	assert.Equal(t, "acme-diner", filepath.Base(filepath.Dir(a1.Path)))
	assert.Equal(t, "acme-diner-biz-b", filepath.Base(filepath.Dir(a2.Path)))

	// Recompiling either keeps its own folder.
	a1again, err := compiler.Compile(ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, a1.Path, a1again.Path)
}

func TestCompile_ConcurrentSameNameGetsDistinctFolders(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b1 := model.Business{ID: "biz-a", Name: "Joe's Pizza & Grill"}
	b2 := model.Business{ID: "biz-b", Name: "JOE'S PIZZA & GRILL"}
	require.NoError(t, st.UpsertBusiness(ctx, b1))
	require.NoError(t, st.UpsertBusiness(ctx, b2))

	// Both names sanitize to the same folder token; racing compiles must
	// still land in two distinct folders with the right owners.
	for i := 0; i < 25; i++ {
		compiler := NewCompiler(st, t.TempDir())

		start := make(chan struct{})
		artifacts := make([]*model.ReportArtifact, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for j, b := range []model.Business{b1, b2} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				artifacts[j], errs[j] = compiler.Compile(ctx, b)
			}()
		}
		close(start)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.NotEqual(t, filepath.Dir(artifacts[0].Path), filepath.Dir(artifacts[1].Path))

		for j, b := range []model.Business{b1, b2} {
			body, err := os.ReadFile(artifacts[j].Path)
			require.NoError(t, err)
			assert.Contains(t, string(body), "- ID: "+b.ID)
		}
	}
}

func TestCompile_EmptyNameFallsBackToID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	b := model.Business{ID: "biz-x", Name: "!!!"}
	require.NoError(t, st.UpsertBusiness(ctx, b))

	compiler := NewCompiler(st, t.TempDir())
	artifact, err := compiler.Compile(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "biz-x", filepath.Base(filepath.Dir(artifact.Path)))
}
