package views

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesParse(t *testing.T) {
	tmpl, err := Load()
	require.NoError(t, err)
	for _, name := range []string{
		"list.html", "search.html", "details.html", "post_edit.html", "post_delete.html",
		"category_list.html", "categories.html", "subscribe.html", "login.html", "signup.html", "error.html",
	} {
		assert.NotNil(t, tmpl.Lookup(name), name)
	}
}

func TestFuncMap(t *testing.T) {
	fm := FuncMap()

	plural := fm["plural"].(func(int64, string) string)
	assert.Equal(t, "1 post", plural(1, "post"))
	assert.Equal(t, "0 categories", plural(0, "category"))
	assert.Equal(t, "3 posts", plural(3, "post"))

	title := fm["title"].(func(string) string)
	assert.Equal(t, "World News", title("world news"))

	pageURL := fm["pageURL"].(func(url.Values, int) string)
	q := url.Values{"title": {"derby"}}
	assert.Equal(t, "?page=2&title=derby", pageURL(q, 2))
	assert.Equal(t, url.Values{"title": {"derby"}}, q)

	date := fm["date"].(func(time.Time) string)
	assert.Equal(t, "05.03.2024 09:07", date(time.Date(2024, 3, 5, 9, 7, 0, 0, time.UTC)))

	hasID := fm["hasID"].(func([]uint, uint) bool)
	assert.True(t, hasID([]uint{1, 2}, 2))
	assert.False(t, hasID(nil, 2))
}
