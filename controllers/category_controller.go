package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/middleware"
	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
	"github.com/cppla/newspaper/views"
)

const (
	subscribedMessage   = "You are now subscribed to the newsletter of this category."
	unsubscribedMessage = "You have unsubscribed from the newsletter of this category."
)

// CategoryController serves category pages and newsletter subscriptions.
type CategoryController struct {
	db *gorm.DB
}

// NewCategoryController creates a CategoryController.
func NewCategoryController(db *gorm.DB) *CategoryController {
	return &CategoryController{db: db}
}

type categorySummary struct {
	ID          uint
	Name        string
	Posts       int64
	Subscribers int64
}

// Index lists every category with its post and subscriber counts.
func (c *CategoryController) Index(ctx *gin.Context) {
	var rows []categorySummary
	err := c.db.Model(&models.Category{}).
		Select("categories.id, categories.name, " +
			"(SELECT COUNT(*) FROM post_categories WHERE post_categories.category_id = categories.id) AS posts, " +
			"(SELECT COUNT(*) FROM category_subscribers WHERE category_subscribers.category_id = categories.id) AS subscribers").
		Order("categories.name").
		Scan(&rows).Error
	if err != nil {
		utils.Sugar.Errorf("list categories: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	views.Render(ctx, http.StatusOK, "categories.html", gin.H{"categories": rows})
}

// Posts renders the posts of one category with the listing filters applied.
func (c *CategoryController) Posts(ctx *gin.Context) {
	category, ok := c.findCategory(ctx)
	if !ok {
		return
	}

	data, ok := postListing(ctx, c.db, func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.id IN (?)",
			c.db.Table("post_categories").Select("post_id").Where("category_id = ?", category.ID))
	})
	if !ok {
		return
	}

	isNotSubscriber := true
	if user, ok := middleware.User(ctx); ok {
		subscribed, err := models.IsSubscribed(c.db, category.ID, user.ID)
		if err != nil {
			utils.Sugar.Warnf("check subscription of user %d: %v", user.ID, err)
		}
		isNotSubscriber = !subscribed
	}

	data["category"] = category
	data["is_not_subscriber"] = isNotSubscriber
	data["category_news_list"] = data["news"]
	views.Render(ctx, http.StatusOK, "category_list.html", data)
}

// Subscribe adds the current user to the category newsletter.
func (c *CategoryController) Subscribe(ctx *gin.Context) {
	c.changeSubscription(ctx, models.Subscribe, subscribedMessage)
}

// Unsubscribe removes the current user from the category newsletter.
func (c *CategoryController) Unsubscribe(ctx *gin.Context) {
	c.changeSubscription(ctx, models.Unsubscribe, unsubscribedMessage)
}

func (c *CategoryController) changeSubscription(ctx *gin.Context, change func(*gorm.DB, *models.Category, *models.User) error, message string) {
	category, ok := c.findCategory(ctx)
	if !ok {
		return
	}
	user, _ := middleware.User(ctx)
	if err := change(c.db, category, user); err != nil {
		utils.Sugar.Errorf("change subscription of user %d to category %d: %v", user.ID, category.ID, err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	views.Render(ctx, http.StatusOK, "subscribe.html", gin.H{
		"category": category,
		"message":  message,
	})
}

func (c *CategoryController) findCategory(ctx *gin.Context) (*models.Category, bool) {
	id, ok := parseID(ctx)
	if !ok {
		return nil, false
	}
	var category models.Category
	if err := c.db.First(&category, id).Error; err != nil {
		notFoundOr500(ctx, err, "load category")
		return nil, false
	}
	return &category, true
}
