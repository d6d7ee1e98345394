package models

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/newspaper/utils"
)

// UserHasPerm reports whether any of the user's groups grants codename.
func UserHasPerm(db *gorm.DB, userID uint, codename string) (bool, error) {
	var n int64
	err := db.Table("auth_permissions").
		Joins("JOIN group_permissions ON group_permissions.permission_id = auth_permissions.id").
		Joins("JOIN user_groups ON user_groups.group_id = group_permissions.group_id").
		Where("user_groups.user_id = ? AND auth_permissions.codename = ?", userID, codename).
		Count(&n).Error
	return n > 0, err
}

// UserInGroup reports whether the user belongs to the named group.
func UserInGroup(db *gorm.DB, userID uint, name string) (bool, error) {
	var n int64
	err := db.Table("auth_groups").
		Joins("JOIN user_groups ON user_groups.group_id = auth_groups.id").
		Where("user_groups.user_id = ? AND auth_groups.name = ?", userID, name).
		Count(&n).Error
	return n > 0, err
}

// AddUserToGroup adds the user to the named group. Adding an existing member is a no-op.
// The group must already exist.
func AddUserToGroup(db *gorm.DB, user *User, name string) error {
	var group Group
	if err := db.Where("name = ?", name).First(&group).Error; err != nil {
		return fmt.Errorf("group %q: %w", name, err)
	}
	return db.Model(user).Association("Groups").Append(&group)
}

// EnsureAuthor returns the author profile of the user, creating it when missing.
func EnsureAuthor(db *gorm.DB, userID uint) (*Author, error) {
	author := Author{}
	err := db.Where(Author{UserID: userID}).FirstOrCreate(&author).Error
	if err != nil {
		return nil, err
	}
	return &author, nil
}

// FindAuthorByUser returns the author profile of the user or gorm.ErrRecordNotFound.
func FindAuthorByUser(db *gorm.DB, userID uint) (*Author, error) {
	var author Author
	if err := db.Where("user_id = ?", userID).First(&author).Error; err != nil {
		return nil, err
	}
	return &author, nil
}

// IsSubscribed reports whether the user receives the category newsletter.
func IsSubscribed(db *gorm.DB, categoryID, userID uint) (bool, error) {
	var n int64
	err := db.Table("category_subscribers").
		Where("category_id = ? AND user_id = ?", categoryID, userID).
		Count(&n).Error
	return n > 0, err
}

// Subscribe adds the user to the category subscribers. Repeated calls are no-ops.
func Subscribe(db *gorm.DB, category *Category, user *User) error {
	return db.Model(category).Association("Subscribers").Append(user)
}

// Unsubscribe removes the user from the category subscribers.
func Unsubscribe(db *gorm.DB, category *Category, user *User) error {
	return db.Model(category).Association("Subscribers").Delete(user)
}

// SubscribersOf returns the distinct users subscribed to any of the categories.
func SubscribersOf(db *gorm.DB, categoryIDs []uint) ([]User, error) {
	var users []User
	if len(categoryIDs) == 0 {
		return users, nil
	}
	sub := db.Table("category_subscribers").Select("user_id").Where("category_id IN ?", categoryIDs)
	err := db.Where("id IN (?)", sub).Order("id").Find(&users).Error
	return users, err
}

// FindCategories loads the categories with the given ids and fails when any is missing.
func FindCategories(db *gorm.DB, ids []uint) ([]Category, error) {
	var cats []Category
	if len(ids) == 0 {
		return cats, nil
	}
	if err := db.Where("id IN ?", ids).Order("name").Find(&cats).Error; err != nil {
		return nil, err
	}
	if len(cats) != len(utils.UniqueUint(ids)) {
		return nil, ErrUnknownCategory
	}
	return cats, nil
}

// ErrUnknownCategory is returned when a referenced category does not exist.
var ErrUnknownCategory = errors.New("unknown category")
