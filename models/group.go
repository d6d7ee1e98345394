package models

// Group is an authorization role. Membership grants the group's permissions.
type Group struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Permissions []Permission `gorm:"many2many:group_permissions;" json:"permissions"`
}

// Permission is a named capability such as "news.add_post".
type Permission struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Codename string `gorm:"size:100;uniqueIndex;not null" json:"codename"`
	Name     string `gorm:"size:255" json:"name"`
}

// TableName avoids the reserved word GROUPS on MySQL 8.
func (Group) TableName() string { return "auth_groups" }

func (Permission) TableName() string { return "auth_permissions" }

const (
	GroupAuthors = "authors"
	GroupCommon  = "common"

	PermAddPost    = "news.add_post"
	PermChangePost = "news.change_post"
	PermDeletePost = "news.delete_post"
	PermViewPost   = "news.view_post"
)
