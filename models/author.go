package models

import "gorm.io/gorm"

// Author is the publishing profile of a user. Posts belong to authors, not users.
type Author struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex;not null" json:"user_id"`
	User   User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	Rating int  `gorm:"not null;default:0" json:"rating"`
}

// UpdateRating recomputes the rating: three times the sum of the author's post
// ratings, plus the author's own comment ratings, plus ratings of comments left
// on the author's posts.
func (a *Author) UpdateRating(tx *gorm.DB) error {
	var postsSum, ownCommentsSum, receivedSum int64

	if err := tx.Model(&Post{}).Where("author_id = ?", a.ID).
		Select("COALESCE(SUM(rating),0)").Scan(&postsSum).Error; err != nil {
		return err
	}
	if err := tx.Model(&Comment{}).Where("user_id = ?", a.UserID).
		Select("COALESCE(SUM(rating),0)").Scan(&ownCommentsSum).Error; err != nil {
		return err
	}
	if err := tx.Model(&Comment{}).
		Joins("JOIN posts ON posts.id = comments.post_id").
		Where("posts.author_id = ?", a.ID).
		Select("COALESCE(SUM(comments.rating),0)").Scan(&receivedSum).Error; err != nil {
		return err
	}

	a.Rating = int(postsSum*3 + ownCommentsSum + receivedSum)
	return tx.Model(a).UpdateColumn("rating", a.Rating).Error
}
