package controllers

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		total    int64
		number   int
		numPages int
		wantErr  bool
	}{
		{name: "first page by default", raw: "", total: 25, number: 1, numPages: 3},
		{name: "explicit page", raw: "2", total: 25, number: 2, numPages: 3},
		{name: "last keyword", raw: "last", total: 25, number: 3, numPages: 3},
		{name: "exact multiple", raw: "2", total: 20, number: 2, numPages: 2},
		{name: "empty listing keeps page one", raw: "1", total: 0, number: 1, numPages: 1},
		{name: "empty listing last", raw: "last", total: 0, number: 1, numPages: 1},
		{name: "beyond range", raw: "4", total: 25, wantErr: true},
		{name: "empty listing page two", raw: "2", total: 0, wantErr: true},
		{name: "zero", raw: "0", total: 25, wantErr: true},
		{name: "negative", raw: "-1", total: 25, wantErr: true},
		{name: "not a number", raw: "abc", total: 25, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := paginate(tc.raw, tc.total, 10)
			if tc.wantErr {
				assert.ErrorIs(t, err, errInvalidPage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.number, p.Number)
			assert.Equal(t, tc.numPages, p.NumPages)
		})
	}
}

func TestPageNeighbours(t *testing.T) {
	p, err := paginate("2", 35, 10)
	require.NoError(t, err)
	assert.True(t, p.HasPrevious)
	assert.True(t, p.HasNext)
	assert.Equal(t, 1, p.PreviousNumber)
	assert.Equal(t, 3, p.NextNumber)
	assert.Equal(t, 10, p.Offset())

	last, err := paginate("last", 35, 10)
	require.NoError(t, err)
	assert.False(t, last.HasNext)
	assert.Equal(t, 30, last.Offset())
}

func TestParsePostFilter(t *testing.T) {
	f := parsePostFilter(url.Values{
		"title":    {"  Derby "},
		"category": {"3"},
		"date":     {"2024-05-01"},
		"page":     {"2"},
	})
	assert.Equal(t, "Derby", f.Title)
	assert.EqualValues(t, 3, f.Category)
	assert.Equal(t, "2024-05-01", f.Date)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local), f.after)
	assert.Equal(t, url.Values{"title": {"Derby"}, "category": {"3"}, "date": {"2024-05-01"}}, f.Query)
	assert.True(t, f.IsBound())
}

func TestParsePostFilterDropsInvalidValues(t *testing.T) {
	f := parsePostFilter(url.Values{"category": {"sport"}, "date": {"01.05.2024"}})
	assert.Zero(t, f.Category)
	assert.Empty(t, f.Date)
	assert.True(t, f.after.IsZero())
	assert.False(t, f.IsBound())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "100!% sure!_ok!!", escapeLike("100% sure_ok!"))
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/news/create/", safeNext("/news/create/"))
	assert.Equal(t, "/news/", safeNext(""))
	assert.Equal(t, "/news/", safeNext("https://evil.example.com"))
	assert.Equal(t, "/news/", safeNext("//evil.example.com"))
}

func TestListTemplate(t *testing.T) {
	assert.Equal(t, "list.html", listTemplate("/news/"))
	assert.Equal(t, "search.html", listTemplate("/news/search/"))
}
