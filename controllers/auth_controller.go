package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/middleware"
	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
	"github.com/cppla/newspaper/views"
)

const invalidCredentials = "Please enter a correct username and password."

// AuthController handles sign up, login and logout, locally and through OAuth providers.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// SignupForm renders the registration page.
func (a *AuthController) SignupForm(ctx *gin.Context) {
	if _, ok := middleware.User(ctx); ok {
		ctx.Redirect(http.StatusFound, "/news/")
		return
	}
	views.Render(ctx, http.StatusOK, "signup.html", gin.H{"form": SignupForm{}})
}

// Signup creates a local account in the common group and logs it in.
func (a *AuthController) Signup(ctx *gin.Context) {
	var form SignupForm
	if err := ctx.ShouldBind(&form); err != nil {
		a.renderSignup(ctx, form, formErrors(err))
		return
	}
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)

	if !validUsername(form.Username) {
		a.renderSignup(ctx, form, []string{"Username may contain only letters, digits and - _ . characters."})
		return
	}
	if err := utils.ValidatePassword(form.Password, form.Confirm); err != nil {
		msg := "Password must be 8 to 72 characters long."
		if errors.Is(err, utils.ErrPasswordMismatch) {
			msg = "The two password fields didn't match."
		}
		a.renderSignup(ctx, form, []string{msg})
		return
	}

	var existing int64
	if err := a.db.Model(&models.User{}).Where("username = ?", form.Username).Count(&existing).Error; err != nil {
		utils.Sugar.Errorf("check username: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	if existing > 0 {
		a.renderSignup(ctx, form, []string{"A user with that username already exists."})
		return
	}

	hash, err := utils.HashPassword(form.Password)
	if err != nil {
		utils.Sugar.Errorf("hash password: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}

	user := models.User{Username: form.Username, Email: form.Email, PasswordHash: hash}
	if err := a.createMember(&user); err != nil {
		utils.Sugar.Errorf("create user %s: %v", form.Username, err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}
	utils.Sugar.Infow("user signed up", "user", user.ID, "username", user.Username)

	if !a.startSession(ctx, &user) {
		return
	}
	ctx.Redirect(http.StatusFound, "/news/")
}

func (a *AuthController) renderSignup(ctx *gin.Context, form SignupForm, errs []string) {
	form.Password, form.Confirm = "", ""
	views.Render(ctx, http.StatusBadRequest, "signup.html", gin.H{"form": form, "errors": errs})
}

// createMember stores the user and puts it into the common group.
func (a *AuthController) createMember(user *models.User) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return models.AddUserToGroup(tx, user, models.GroupCommon)
	})
}

// LoginForm renders the login page.
func (a *AuthController) LoginForm(ctx *gin.Context) {
	if _, ok := middleware.User(ctx); ok {
		ctx.Redirect(http.StatusFound, safeNext(ctx.Query("next")))
		return
	}
	views.Render(ctx, http.StatusOK, "login.html", gin.H{"next": ctx.Query("next")})
}

// Login verifies the credentials and sets the session cookie.
func (a *AuthController) Login(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	password := ctx.PostForm("password")
	next := ctx.PostForm("next")

	fail := func() {
		views.Render(ctx, http.StatusBadRequest, "login.html", gin.H{
			"error":    invalidCredentials,
			"next":     next,
			"username": username,
		})
	}
	if username == "" || password == "" {
		fail()
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil {
		fail()
		return
	}
	if user.PasswordHash == "" || !utils.CheckPassword(user.PasswordHash, password) {
		fail()
		return
	}

	if !a.startSession(ctx, &user) {
		return
	}
	ctx.Redirect(http.StatusFound, safeNext(next))
}

// Logout revokes the session token until its natural expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	if token := ctx.GetString(utils.CtxToken); token != "" {
		claims, err := utils.ParseToken(token)
		if err == nil {
			utils.BlacklistToken(token, utils.TokenExpiry(claims))
		}
	}
	middleware.ClearSession(ctx)
	ctx.Redirect(http.StatusFound, "/news/")
}

func (a *AuthController) startSession(ctx *gin.Context, user *models.User) bool {
	token, err := utils.GenerateToken(user.ID, user.Username, utils.SessionTTL)
	if err != nil {
		utils.Sugar.Errorf("generate token: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return false
	}
	middleware.SetSession(ctx, token)
	return true
}

// OAuthRedirect sends the browser to the provider's consent page.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	cfg, err := oauthConfig(ctx.Param("provider"))
	if err != nil {
		views.Error(ctx, http.StatusNotFound, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	ctx.Redirect(http.StatusFound, cfg.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// OAuthCallback exchanges the authorization code for a user identity and logs it in.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		views.Error(ctx, http.StatusBadRequest, "Missing code or state.")
		return
	}
	if !utils.ConsumeState(state) {
		views.Error(ctx, http.StatusBadRequest, "The login link expired, try again.")
		return
	}

	cfg, err := oauthConfig(provider)
	if err != nil {
		views.Error(ctx, http.StatusNotFound, err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()

	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Sugar.Warnf("oauth %s exchange failed: %v", provider, err)
		views.Error(ctx, http.StatusBadRequest, "Could not complete the login with "+provider+".")
		return
	}

	info, err := fetchOAuthUser(reqCtx, provider, cfg.Client(reqCtx, token))
	if err != nil {
		utils.Sugar.Errorf("oauth %s user info: %v", provider, err)
		views.Error(ctx, http.StatusBadGateway, "Could not read your profile from "+provider+".")
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		utils.Sugar.Errorf("persist oauth user: %v", err)
		views.Error(ctx, http.StatusInternalServerError, "")
		return
	}

	if !a.startSession(ctx, user) {
		return
	}
	ctx.Redirect(http.StatusFound, "/news/")
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	callback := func(p string) string {
		return fmt.Sprintf("%s/accounts/oauth/%s/callback", cfg.App.SiteURL, p)
	}
	switch strings.ToLower(provider) {
	case "github":
		if cfg.OAuth.GitHubClientID == "" || cfg.OAuth.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github login is not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.OAuth.GitHubClientID,
			ClientSecret: cfg.OAuth.GitHubClientSecret,
			RedirectURL:  callback("github"),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.OAuth.GoogleClientID == "" || cfg.OAuth.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google login is not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.OAuth.GoogleClientID,
			ClientSecret: cfg.OAuth.GoogleClientSecret,
			RedirectURL:  callback("google"),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

func fetchOAuthUser(ctx context.Context, provider string, client *http.Client) (*oauthUser, error) {
	switch provider {
	case "github":
		return fetchGitHubUser(ctx, client)
	case "google":
		return fetchGoogleUser(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
		return nil, err
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	email := ""
	if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	return &oauthUser{
		ID:        fmt.Sprintf("%d", payload.ID),
		Username:  payload.Login,
		Email:     email,
		AvatarURL: payload.AvatarURL,
	}, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*oauthUser, error) {
	var payload struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
		return nil, err
	}
	username, _, _ := strings.Cut(payload.Email, "@")
	return &oauthUser{
		ID:        payload.ID,
		Username:  username,
		Email:     payload.Email,
		AvatarURL: payload.Picture,
	}, nil
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"avatar_url": data.AvatarURL}
		if e := strings.TrimSpace(data.Email); e != "" {
			updates["email"] = e
		}
		if err := a.db.Model(&user).Updates(updates).Error; err != nil {
			utils.Sugar.Warnf("refresh oauth profile of user %d: %v", user.ID, err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Username:   a.ensureUniqueUsername(data.Username, provider, data.ID),
			Email:      strings.TrimSpace(data.Email),
			Provider:   provider,
			ProviderID: data.ID,
			AvatarURL:  data.AvatarURL,
		}
		if err := a.createMember(&user); err != nil {
			return nil, err
		}
		utils.Sugar.Infow("user signed up", "user", user.ID, "provider", provider)
		return &user, nil
	default:
		return nil, err
	}
}

func validUsername(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return s != ""
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_")
}

func (a *AuthController) ensureUniqueUsername(base, provider, id string) string {
	base = sanitizeUsername(base)
	if len(base) < 3 {
		base = sanitizeUsername(fmt.Sprintf("%s_%s", provider, id))
	}
	if len(base) > 56 {
		base = base[:56]
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if err := a.db.Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return candidate
		}
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}
