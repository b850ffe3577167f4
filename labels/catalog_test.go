package labels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var deploymentCodes = []string{
	"C2.4", "C10.1.2", "C1.2", "C10.1.1", "C4.2", "S1.2", "C2.3", "C8.1.7", "C1.5", "C8.1.4",
	"S1.4", "S1.3", "S1.9", "C2.2", "S1.12", "S1.5", "C4.1", "C1.3", "C10.1.4", "B12.3.a_C2",
}

func TestBuiltinCatalogs(t *testing.T) {
	catalog, err := LoadCatalog(DefaultLanguage, "")
	require.NoError(t, err)

	assert.Equal(t, language.MustParse("zh-TW"), catalog.Default().Language())
	assert.Len(t, catalog.Languages(), 2)

	for _, tag := range catalog.Languages() {
		table := catalog.Match(tag.String())
		unlabeled, unknown := table.Stale(deploymentCodes)
		assert.Empty(t, unlabeled, tag.String())
		assert.Empty(t, unknown, tag.String())
		for tier := 1; tier <= 3; tier++ {
			assert.NotEmpty(t, table.Tier(tier).Guidance, "%s tier %d", tag, tier)
		}
	}

	zh := catalog.Default()
	assert.Equal(t, "3.不可以自我照顧-使用器具(例如輪椅、拐杖)就可以自行移動(C1.2, importance: 0.787)", zh.LabelFor("C1.2"))
	assert.Equal(t, "5.與鄰居聯繫互動，大約情形是？(C4.2, importance: 0.060)", zh.LabelFor("C4.2"))
	assert.Equal(t, "原始代號: C1.2", zh.Help("C1.2"))
}

func TestCatalogMatch(t *testing.T) {
	catalog, err := LoadCatalog(DefaultLanguage, "")
	require.NoError(t, err)

	en := language.MustParse("en")
	zh := language.MustParse("zh-TW")
	tests := []struct {
		name  string
		prefs []string
		want  language.Tag
	}{
		{name: "no preference", prefs: nil, want: zh},
		{name: "exact", prefs: []string{"en"}, want: en},
		{name: "region variant", prefs: []string{"en-GB"}, want: en},
		{name: "accept header", prefs: []string{"fr-FR,fr;q=0.9,en;q=0.8"}, want: en},
		{name: "unsupported", prefs: []string{"fr"}, want: zh},
		{name: "unsupported with region", prefs: []string{"de-DE"}, want: zh},
		{name: "unsupported header", prefs: []string{"de-DE,de;q=0.9,fr;q=0.5"}, want: zh},
		{name: "garbage ignored", prefs: []string{"???", "en"}, want: en},
		{name: "query beats header", prefs: []string{"zh-TW", "en-US,en;q=0.9"}, want: zh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.Match(tt.prefs...).Language())
		})
	}
}

func TestOverrideDirectoryReplacesBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.yaml"), []byte(miniTable), 0o600))

	catalog, err := LoadCatalog(DefaultLanguage, dir)
	require.NoError(t, err)

	table := catalog.Match("en")
	assert.Equal(t, "1.first indicator(A1, importance: 0.50)", table.LabelFor("A1"))
	assert.Equal(t, "C1.2", table.LabelFor("C1.2"))
	assert.Len(t, catalog.Languages(), 2)
}

func TestNewCatalogErrors(t *testing.T) {
	_, err := NewCatalog(DefaultLanguage)
	assert.Error(t, err)

	table, err := ParseTable([]byte(miniTable))
	require.NoError(t, err)
	_, err = NewCatalog("de", table)
	assert.Error(t, err)

	_, err = LoadCatalog(DefaultLanguage, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
