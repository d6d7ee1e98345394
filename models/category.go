package models

// Category groups posts and carries the list of users subscribed to its newsletter.
type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Subscribers []User `gorm:"many2many:category_subscribers;" json:"-"`
	Posts       []Post `gorm:"many2many:post_categories;" json:"-"`
}
