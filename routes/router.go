package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/controllers"
	"github.com/cppla/newspaper/middleware"
	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
	"github.com/cppla/newspaper/views"
)

// SetupRouter wires routes, middlewares, and controllers. notifier may be nil.
func SetupRouter(db *gorm.DB, notifier controllers.PostNotifier) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.Gin.Mode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// access log goes to its own rolling file when a path is configured
	accessLog := utils.Logger
	if cfg.Gin.LogPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.Gin.LogPath, cfg.Log); err == nil {
			accessLog = gl
		} else {
			utils.Sugar.Warnf("gin log %s: %v, using application log", cfg.Gin.LogPath, err)
		}
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.CSRFHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.App.AllowedOrigins) == 1 && cfg.App.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.App.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.SetHTMLTemplate(views.MustLoad())
	r.StaticFS("/static", views.Static())

	r.Use(middleware.CSRF())
	r.Use(middleware.CurrentUser(db))
	// Record PV after each request
	r.Use(middleware.PageViewRecorder(db))

	newsController := controllers.NewNewsController(db, notifier)
	categoryController := controllers.NewCategoryController(db)
	authController := controllers.NewAuthController(db)
	statsController := controllers.NewStatsController(db)

	r.GET("/", func(ctx *gin.Context) {
		ctx.Redirect(http.StatusFound, "/news/")
	})
	r.GET("/health", statsController.Health)

	canAdd := middleware.PermissionRequired(db, models.PermAddPost)
	canChange := middleware.PermissionRequired(db, models.PermChangePost)
	canDelete := middleware.PermissionRequired(db, models.PermDeletePost)
	loginRequired := middleware.LoginRequired()

	news := r.Group("/news")
	news.GET("/", newsController.List)
	news.GET("/search/", newsController.List)
	news.GET("/upgrade/", loginRequired, newsController.Upgrade)
	news.GET("/create/", canAdd, newsController.CreateForm)
	news.POST("/create/", canAdd, newsController.Create)
	news.GET("/:id", newsController.Detail)
	news.GET("/:id/edit/", canChange, newsController.EditForm)
	news.POST("/:id/edit/", canChange, newsController.Update)
	news.GET("/:id/delete/", canDelete, newsController.DeleteConfirm)
	news.POST("/:id/delete/", canDelete, newsController.Delete)
	news.POST("/:id/comments", loginRequired, newsController.AddComment)
	news.POST("/:id/like", loginRequired, newsController.Like)
	news.POST("/:id/dislike", loginRequired, newsController.Dislike)

	r.GET("/post/article/create/", canAdd, newsController.CreateForm)
	r.POST("/post/article/create/", canAdd, newsController.Create)

	categories := r.Group("/categories")
	categories.GET("/", categoryController.Index)
	categories.GET("/:id", categoryController.Posts)
	categories.GET("/:id/subscribe", loginRequired, categoryController.Subscribe)
	categories.GET("/:id/unsubscribe", loginRequired, categoryController.Unsubscribe)

	accounts := r.Group("/accounts")
	accounts.Use(middleware.NewRateLimiter(cfg.App.RateLimitPerMinute).Middleware())
	accounts.GET("/signup/", authController.SignupForm)
	accounts.POST("/signup/", authController.Signup)
	accounts.GET("/login/", authController.LoginForm)
	accounts.POST("/login/", authController.Login)
	accounts.POST("/logout/", authController.Logout)
	accounts.GET("/oauth/:provider/login", authController.OAuthRedirect)
	accounts.GET("/oauth/:provider/callback", authController.OAuthCallback)

	api := r.Group("/api/v1")
	api.GET("/stats", statsController.GetStats)
	api.GET("/posts/:id/stats", statsController.GetPostStats)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		views.Error(ctx, http.StatusNotFound, "")
	})

	return r
}
