package controllers

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/newspaper/models"
)

const filterDateLayout = "2006-01-02"

// PostFilter narrows post listings by title fragment, category and creation date.
// Values that do not parse are dropped, leaving that filter unbound.
type PostFilter struct {
	Title    string
	Category uint
	Date     string

	after time.Time
	// Query holds the bound filter values, used to keep them in pagination links.
	Query url.Values
	// Categories feeds the category selector of the filter form.
	Categories []models.Category
}

func parsePostFilter(q url.Values) *PostFilter {
	f := &PostFilter{Query: url.Values{}}

	if t := strings.TrimSpace(q.Get("title")); t != "" {
		f.Title = t
		f.Query.Set("title", t)
	}
	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			f.Category = uint(id)
			f.Query.Set("category", raw)
		}
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		if d, err := time.ParseInLocation(filterDateLayout, raw, time.Local); err == nil {
			f.after = d
			f.Date = raw
			f.Query.Set("date", raw)
		}
	}
	return f
}

// Apply adds the bound filters to a posts query.
func (f *PostFilter) Apply(q *gorm.DB) *gorm.DB {
	if f.Title != "" {
		q = q.Where("LOWER(posts.title) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(f.Title))+"%")
	}
	if f.Category != 0 {
		q = q.Where("posts.id IN (?)",
			q.Session(&gorm.Session{NewDB: true}).Table("post_categories").Select("post_id").Where("category_id = ?", f.Category))
	}
	if !f.after.IsZero() {
		q = q.Where("posts.created_at >= ?", f.after)
	}
	return q
}

// escapeLike makes LIKE wildcards in user input match literally.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// IsBound reports whether any filter value was accepted.
func (f *PostFilter) IsBound() bool {
	return len(f.Query) > 0
}
