package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
)

// PageViewRecorder counts successful GET page views per day and path.
// Only reader-facing pages under /news/ and /categories/ are counted.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "GET" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/news/") && !strings.HasPrefix(path, "/categories/") {
			return
		}

		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		// upsert keeps concurrent first views of a path from colliding
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
		}).Create(&models.PageView{Date: midnight, Path: path, Count: 1}).Error
		if err != nil {
			utils.Sugar.Warnf("record page view %s: %v", path, err)
		}
	}
}
