package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/middleware"
	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
	"github.com/cppla/newspaper/views"
)

const (
	searchPath        = "/news/search/"
	articleCreatePath = "/post/article/create/"
	maxCommentLength  = 2000
)

// PostNotifier is told about every newly published post.
type PostNotifier interface {
	PostCreated(post *models.Post) (int, error)
}

// NewsController serves the news listing, detail and editing pages.
type NewsController struct {
	db       *gorm.DB
	notifier PostNotifier
}

// NewNewsController creates a NewsController. notifier may be nil.
func NewNewsController(db *gorm.DB, notifier PostNotifier) *NewsController {
	return &NewsController{db: db, notifier: notifier}
}

// List renders all news, newest first. The search path shares the query but
// renders the page with the filter form.
func (n *NewsController) List(ctx *gin.Context) {
	data, ok := postListing(ctx, n.db, nil)
	if !ok {
		return
	}
	views.Render(ctx, http.StatusOK, listTemplate(ctx.Request.URL.Path), data)
}

func listTemplate(path string) string {
	if path == searchPath {
		return "search.html"
	}
	return "list.html"
}

// Detail renders one post with its comments.
func (n *NewsController) Detail(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	post, err := n.loadDetail(id)
	if err != nil {
		notFoundOr500(ctx, err, "load post")
		return
	}

	var viewCount int64
	if err := n.db.Model(&models.PageView{}).
		Where("path = ?", postURL(post.ID)).
		Select("COALESCE(SUM(count),0)").
		Scan(&viewCount).Error; err != nil {
		viewCount = 0
	}

	canEdit, _ := middleware.HasPerm(n.db, ctx, models.PermChangePost)
	canDelete, _ := middleware.HasPerm(n.db, ctx, models.PermDeletePost)

	views.Render(ctx, http.StatusOK, "details.html", gin.H{
		"new":           post,
		"views":         viewCount,
		"comment_count": int64(len(post.Comments)),
		"can_edit":      canEdit,
		"can_delete":    canDelete,
	})
}

func (n *NewsController) loadDetail(id uint) (*models.Post, error) {
	key := postCacheKey(id)
	var post models.Post
	if utils.CacheGetJSON(key, &post) {
		return &post, nil
	}
	err := n.db.
		Preload("Author.User").
		Preload("Categories", func(tx *gorm.DB) *gorm.DB { return tx.Order("categories.name") }).
		Preload("Comments", func(tx *gorm.DB) *gorm.DB { return tx.Order("comments.created_at, comments.id") }).
		Preload("Comments.User").
		First(&post, id).Error
	if err != nil {
		return nil, err
	}
	utils.CacheSetJSON(key, post, 0)
	return &post, nil
}

func postCacheKey(id uint) string {
	return utils.CacheKeyPostDetail + strconv.FormatUint(uint64(id), 10)
}

func invalidatePost(id uint) {
	utils.CacheDelete(postCacheKey(id))
}

// CreateForm renders an empty post form. The article path preselects the article type.
func (n *NewsController) CreateForm(ctx *gin.Context) {
	n.renderForm(ctx, http.StatusOK, PostForm{}, nil, formPage{
		action:    ctx.Request.URL.Path,
		isArticle: ctx.Request.URL.Path == articleCreatePath,
	})
}

// Create publishes a post as the current user and notifies category subscribers.
func (n *NewsController) Create(ctx *gin.Context) {
	user, _ := middleware.User(ctx)
	page := formPage{
		action:    ctx.Request.URL.Path,
		isArticle: ctx.Request.URL.Path == articleCreatePath,
	}

	form, cats, errs := n.bindPostForm(ctx)
	if errs != nil {
		n.renderForm(ctx, http.StatusBadRequest, form, errs, page)
		return
	}

	author, err := models.EnsureAuthor(n.db, user.ID)
	if err != nil {
		utils.Sugar.Errorf("ensure author for user %d: %v", user.ID, err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}

	post := models.Post{
		AuthorID:   author.ID,
		PostType:   models.PostTypeNews,
		Title:      form.Title,
		Text:       utils.Sanitize(form.Text),
		Categories: cats,
	}
	if page.isArticle {
		post.PostType = models.PostTypeArticle
	}
	if err := n.db.Omit("Categories.*").Create(&post).Error; err != nil {
		utils.Sugar.Errorf("create post: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	utils.Sugar.Infow("post created", "post", post.ID, "type", post.PostType, "author", author.ID)

	if n.notifier != nil {
		if queued, err := n.notifier.PostCreated(&post); err != nil {
			utils.Sugar.Errorf("notify subscribers of post %d: %v", post.ID, err)
		} else {
			utils.Sugar.Infof("post %d: %d newsletter messages queued", post.ID, queued)
		}
	}

	ctx.Redirect(http.StatusFound, postURL(post.ID))
}

// EditForm renders the form filled with the stored post.
func (n *NewsController) EditForm(ctx *gin.Context) {
	post, ok := n.findPost(ctx)
	if !ok {
		return
	}
	form := PostForm{Title: post.Title, Text: post.Text}
	for _, c := range post.Categories {
		form.Categories = append(form.Categories, c.ID)
	}
	n.renderForm(ctx, http.StatusOK, form, nil, formPage{
		action:    ctx.Request.URL.Path,
		isArticle: post.IsArticle(),
		editing:   true,
	})
}

// Update saves the edited title, text and categories. The post type never changes.
func (n *NewsController) Update(ctx *gin.Context) {
	post, ok := n.findPost(ctx)
	if !ok {
		return
	}

	form, cats, errs := n.bindPostForm(ctx)
	if errs != nil {
		n.renderForm(ctx, http.StatusBadRequest, form, errs, formPage{
			action:    ctx.Request.URL.Path,
			isArticle: post.IsArticle(),
			editing:   true,
		})
		return
	}

	err := n.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(post).Updates(map[string]interface{}{
			"title": form.Title,
			"text":  utils.Sanitize(form.Text),
		}).Error; err != nil {
			return err
		}
		return tx.Model(post).Association("Categories").Replace(cats)
	})
	if err != nil {
		utils.Sugar.Errorf("update post %d: %v", post.ID, err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	invalidatePost(post.ID)

	ctx.Redirect(http.StatusFound, postURL(post.ID))
}

// DeleteConfirm asks before deleting.
func (n *NewsController) DeleteConfirm(ctx *gin.Context) {
	post, ok := n.findPost(ctx)
	if !ok {
		return
	}
	views.Render(ctx, http.StatusOK, "post_delete.html", gin.H{"new": post})
}

// Delete removes the post with its comments and category links.
func (n *NewsController) Delete(ctx *gin.Context) {
	post, ok := n.findPost(ctx)
	if !ok {
		return
	}
	if err := n.db.Select("Categories", "Comments").Delete(post).Error; err != nil {
		utils.Sugar.Errorf("delete post %d: %v", post.ID, err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	invalidatePost(post.ID)
	utils.Sugar.Infow("post deleted", "post", post.ID)

	ctx.Redirect(http.StatusFound, "/news/")
}

// Upgrade puts the current user into the authors group and gives them an author profile.
func (n *NewsController) Upgrade(ctx *gin.Context) {
	user, _ := middleware.User(ctx)

	inAuthors, err := models.UserInGroup(n.db, user.ID, models.GroupAuthors)
	if err != nil {
		notFoundOr500(ctx, err, "check authors group")
		return
	}
	if !inAuthors {
		if err := models.AddUserToGroup(n.db, user, models.GroupAuthors); err != nil {
			utils.Sugar.Errorf("add user %d to authors: %v", user.ID, err)
			views.Error(ctx, http.StatusInternalServerError, "")
			return
		}
		utils.Sugar.Infow("user became an author", "user", user.ID)
	}
	if _, err := models.EnsureAuthor(n.db, user.ID); err != nil {
		utils.Sugar.Errorf("ensure author for user %d: %v", user.ID, err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}

	ctx.Redirect(http.StatusFound, "/news/")
}

// Like raises the post rating and refreshes the author's rating.
func (n *NewsController) Like(ctx *gin.Context) {
	n.rate(ctx, (*models.Post).Like)
}

// Dislike lowers the post rating and refreshes the author's rating.
func (n *NewsController) Dislike(ctx *gin.Context) {
	n.rate(ctx, (*models.Post).Dislike)
}

func (n *NewsController) rate(ctx *gin.Context, apply func(*models.Post, *gorm.DB) error) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	err := n.db.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, id).Error; err != nil {
			return err
		}
		if err := apply(&post, tx); err != nil {
			return err
		}
		var author models.Author
		if err := tx.First(&author, post.AuthorID).Error; err != nil {
			return err
		}
		return author.UpdateRating(tx)
	})
	if err != nil {
		notFoundOr500(ctx, err, "rate post")
		return
	}
	invalidatePost(id)
	ctx.Redirect(http.StatusFound, postURL(id))
}

// AddComment stores a reader comment under the post.
func (n *NewsController) AddComment(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	user, _ := middleware.User(ctx)

	var post models.Post
	if err := n.db.Select("id").First(&post, id).Error; err != nil {
		notFoundOr500(ctx, err, "load post")
		return
	}

	text := utils.PlainText(strings.TrimSpace(ctx.PostForm("text")))
	if text == "" {
		views.Error(ctx, http.StatusBadRequest, "Comment text is required.")
		return
	}
	if len([]rune(text)) > maxCommentLength {
		views.Error(ctx, http.StatusBadRequest, "Comment is too long.")
		return
	}

	comment := models.Comment{PostID: post.ID, UserID: user.ID, Text: text}
	if err := n.db.Create(&comment).Error; err != nil {
		utils.Sugar.Errorf("create comment on post %d: %v", post.ID, err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	invalidatePost(post.ID)

	ctx.Redirect(http.StatusFound, postURL(post.ID)+"#comments")
}

// findPost loads the :id post with its categories, writing 404 when missing.
func (n *NewsController) findPost(ctx *gin.Context) (*models.Post, bool) {
	id, ok := parseID(ctx)
	if !ok {
		return nil, false
	}
	var post models.Post
	if err := n.db.Preload("Categories").First(&post, id).Error; err != nil {
		notFoundOr500(ctx, err, "load post")
		return nil, false
	}
	return &post, true
}

// bindPostForm binds and validates the submitted form. errs is nil when the form is valid.
func (n *NewsController) bindPostForm(ctx *gin.Context) (PostForm, []models.Category, []string) {
	var form PostForm
	if err := ctx.ShouldBind(&form); err != nil {
		form.normalize()
		return form, nil, formErrors(err)
	}
	form.normalize()

	var errs []string
	if form.Title == "" {
		errs = append(errs, "Title is required.")
	}
	if utils.PlainText(form.Text) == "" {
		errs = append(errs, "Text is required.")
	}
	cats, err := models.FindCategories(n.db, form.Categories)
	switch {
	case errors.Is(err, models.ErrUnknownCategory):
		errs = append(errs, "Select a valid category.")
	case err != nil:
		utils.Sugar.Errorf("load form categories: %v", err)
		errs = append(errs, "Categories could not be loaded, try again.")
	}
	if len(errs) > 0 {
		return form, nil, errs
	}
	return form, cats, nil
}

type formPage struct {
	action    string
	isArticle bool
	editing   bool
}

func (n *NewsController) renderForm(ctx *gin.Context, status int, form PostForm, errs []string, page formPage) {
	cats, err := categoryOptions(n.db)
	if err != nil {
		utils.Sugar.Errorf("load categories: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	views.Render(ctx, status, "post_edit.html", gin.H{
		"form":       form,
		"errors":     errs,
		"categories": cats,
		"action":     page.action,
		"is_article": page.isArticle,
		"editing":    page.editing,
	})
}
