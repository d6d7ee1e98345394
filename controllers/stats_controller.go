package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
)

// StatsController provides site statistics such as counts and daily page views.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// Health reports whether the database answers.
func (s *StatsController) Health(ctx *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx.Request.Context())
	}
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50300, "database unavailable")
		return
	}
	utils.Success(ctx, gin.H{"status": "ok"})
}

// GetStats returns aggregate statistics for the site.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount, postCount, categoryCount, commentCount, dailyViews int64

	// a failing count reports 0 rather than failing the endpoint
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}
	if err := s.db.Model(&models.Post{}).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := s.db.Model(&models.Category{}).Count(&categoryCount).Error; err != nil {
		categoryCount = 0
	}
	if err := s.db.Model(&models.Comment{}).Count(&commentCount).Error; err != nil {
		commentCount = 0
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := s.db.Model(&models.PageView{}).
		Where("date = ?", midnight).
		Select("COALESCE(SUM(count),0)").
		Scan(&dailyViews).Error; err != nil {
		dailyViews = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":       userCount,
		"post_count":       postCount,
		"category_count":   categoryCount,
		"comment_count":    commentCount,
		"daily_page_views": dailyViews,
	})
}

// GetPostStats returns page views, rating and comment count of a post.
func (s *StatsController) GetPostStats(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}
	var post models.Post
	if err := s.db.Select("id", "rating").First(&post, id).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}

	var pv int64
	if err := s.db.Model(&models.PageView{}).
		Where("path = ?", postURL(post.ID)).
		Select("COALESCE(SUM(count),0)").
		Scan(&pv).Error; err != nil {
		pv = 0
	}

	var commentsCount int64
	if err := s.db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&commentsCount).Error; err != nil {
		commentsCount = 0
	}

	utils.Success(ctx, gin.H{
		"pv":             pv,
		"rating":         post.Rating,
		"comments_count": commentsCount,
	})
}
