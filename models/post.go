package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/newspaper/utils"
)

const (
	PostTypeNews    = "NW"
	PostTypeArticle = "AT"

	previewLength = 124
)

// Post is a news item or an article written by an author.
type Post struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	AuthorID   uint       `gorm:"index;not null" json:"author_id"`
	Author     Author     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	PostType   string     `gorm:"size:2;not null;default:'NW';index" json:"post_type"`
	Title      string     `gorm:"size:128;not null" json:"title"`
	Text       string     `gorm:"type:text;not null" json:"text"`
	Rating     int        `gorm:"not null;default:0" json:"rating"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Categories []Category `gorm:"many2many:post_categories;" json:"categories"`
	Comments   []Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments,omitempty"`
}

// BeforeSave defaults the post type to news.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	if p.PostType == "" {
		p.PostType = PostTypeNews
	}
	return nil
}

// Preview returns the first characters of the text, stripped of markup, followed by an ellipsis.
func (p Post) Preview() string {
	plain := strings.Join(strings.Fields(utils.PlainText(p.Text)), " ")
	r := []rune(plain)
	if len(r) <= previewLength {
		return plain
	}
	return string(r[:previewLength]) + "..."
}

// IsArticle reports whether the post was published as an article.
func (p Post) IsArticle() bool {
	return p.PostType == PostTypeArticle
}

// Like raises the post rating by one.
func (p *Post) Like(tx *gorm.DB) error {
	return p.adjustRating(tx, 1)
}

// Dislike lowers the post rating by one.
func (p *Post) Dislike(tx *gorm.DB) error {
	return p.adjustRating(tx, -1)
}

func (p *Post) adjustRating(tx *gorm.DB, delta int) error {
	if err := tx.Model(p).UpdateColumn("rating", gorm.Expr("rating + ?", delta)).Error; err != nil {
		return err
	}
	p.Rating += delta
	return nil
}
