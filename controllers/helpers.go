package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/middleware"
	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
	"github.com/cppla/newspaper/views"
)

// parseID reads the :id path parameter, rendering 404 when it is not a positive integer.
func parseID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil || id == 0 {
		views.Error(ctx, http.StatusNotFound, "")
		return 0, false
	}
	return uint(id), true
}

// notFoundOr500 renders 404 for missing records and 500 for everything else.
func notFoundOr500(ctx *gin.Context, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		views.Error(ctx, http.StatusNotFound, "")
		return
	}
	utils.Sugar.Errorf("%s: %v", what, err)
	views.Error(ctx, http.StatusInternalServerError, "")
}

// categoryOptions returns every category ordered by name, served from cache when possible.
func categoryOptions(db *gorm.DB) ([]models.Category, error) {
	var cats []models.Category
	if utils.CacheGetJSON(utils.CacheKeyCategories, &cats) {
		return cats, nil
	}
	if err := db.Order("name").Find(&cats).Error; err != nil {
		return nil, err
	}
	utils.CacheSetJSON(utils.CacheKeyCategories, cats, time.Hour)
	return cats, nil
}

func pageSize() int {
	if n := config.Get().App.PageSize; n > 0 {
		return n
	}
	return 10
}

// postListing runs the filtered, paginated post query shared by the news and
// category pages. scope narrows the base query further and may be nil.
// On failure the error page is already written and ok is false.
func postListing(ctx *gin.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) (data gin.H, ok bool) {
	filter := parsePostFilter(ctx.Request.URL.Query())
	cats, err := categoryOptions(db)
	if err != nil {
		utils.Sugar.Errorf("load categories: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return nil, false
	}
	filter.Categories = cats

	base := func() *gorm.DB {
		q := filter.Apply(db.Model(&models.Post{}))
		if scope != nil {
			q = scope(q)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		utils.Sugar.Errorf("count posts: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return nil, false
	}

	page, err := paginate(ctx.Query("page"), total, pageSize())
	if err != nil {
		views.Error(ctx, http.StatusNotFound, "Invalid page.")
		return nil, false
	}

	var posts []models.Post
	err = base().
		Preload("Author.User").
		Preload("Categories", func(tx *gorm.DB) *gorm.DB { return tx.Order("categories.name") }).
		Order("posts.created_at DESC, posts.id DESC").
		Offset(page.Offset()).Limit(page.PerPage).
		Find(&posts).Error
	if err != nil {
		utils.Sugar.Errorf("list posts: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return nil, false
	}

	isNotAuthor := true
	if user, ok := middleware.User(ctx); ok {
		inAuthors, err := models.UserInGroup(db, user.ID, models.GroupAuthors)
		if err != nil {
			utils.Sugar.Warnf("check authors group for user %d: %v", user.ID, err)
		}
		isNotAuthor = !inAuthors
	}

	return gin.H{
		"news":          posts,
		"page":          page,
		"filterset":     filter,
		"is_not_author": isNotAuthor,
		"time_now":      time.Now().UTC(),
		"next_post":     nil,
	}, true
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/news/"
	}
	return next
}

func postURL(id uint) string {
	return "/news/" + strconv.FormatUint(uint64(id), 10)
}
