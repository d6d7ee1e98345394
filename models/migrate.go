package models

import (
	"fmt"

	"gorm.io/gorm"
)

// All lists every model managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Permission{}, &Group{}, &Author{}, &Category{},
		&Post{}, &Comment{}, &PageView{},
	}
}

var defaultPermissions = []Permission{
	{Codename: PermAddPost, Name: "Can add post"},
	{Codename: PermChangePost, Name: "Can change post"},
	{Codename: PermDeletePost, Name: "Can delete post"},
	{Codename: PermViewPost, Name: "Can view post"},
}

var defaultGroups = map[string][]string{
	GroupAuthors: {PermAddPost, PermChangePost, PermDeletePost, PermViewPost},
	GroupCommon:  {PermViewPost},
}

// Migrate creates or updates the schema and seeds groups and permissions.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return SeedAuth(db)
}

// SeedAuth makes sure the default permissions and groups exist. It is idempotent.
func SeedAuth(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		byCode := make(map[string]Permission, len(defaultPermissions))
		for _, p := range defaultPermissions {
			perm := Permission{}
			if err := tx.Where(Permission{Codename: p.Codename}).
				Attrs(Permission{Name: p.Name}).
				FirstOrCreate(&perm).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Codename, err)
			}
			byCode[p.Codename] = perm
		}

		for name, codes := range defaultGroups {
			group := Group{}
			if err := tx.Where(Group{Name: name}).FirstOrCreate(&group).Error; err != nil {
				return fmt.Errorf("seed group %s: %w", name, err)
			}
			perms := make([]Permission, 0, len(codes))
			for _, c := range codes {
				perms = append(perms, byCode[c])
			}
			if err := tx.Model(&group).Association("Permissions").Append(perms); err != nil {
				return fmt.Errorf("grant %s permissions: %w", name, err)
			}
		}
		return nil
	})
}
