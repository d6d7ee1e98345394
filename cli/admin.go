package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
)

// NewCategoryCommand creates the category command group.
func NewCategoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage news categories",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>...",
		Short: "Create categories; existing names are left alone",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			for _, name := range args {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				cat := models.Category{}
				if err := db.Where(models.Category{Name: name}).FirstOrCreate(&cat).Error; err != nil {
					return fmt.Errorf("category %q: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", cat.ID, cat.Name)
			}
			utils.InvalidateByPrefix(utils.CacheKeyCategories)
			return nil
		},
	})
	return cmd
}

// NewGroupCommand creates the group command group.
func NewGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage group membership",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add-user <group> <username>",
		Short: "Add a user to a group such as authors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			var user models.User
			if err := db.Where("username = ?", args[1]).First(&user).Error; err != nil {
				return fmt.Errorf("user %q: %w", args[1], err)
			}
			if err := models.AddUserToGroup(db, &user, args[0]); err != nil {
				return err
			}
			if args[0] == models.GroupAuthors {
				if _, err := models.EnsureAuthor(db, user.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now in %s\n", user.Username, args[0])
			return nil
		},
	})
	return cmd
}
