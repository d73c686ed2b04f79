package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
	oauthgoogle "golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/config"
	"github.com/trailgreen/carbontrack/middleware"
	"github.com/trailgreen/carbontrack/models"
	"github.com/trailgreen/carbontrack/services"
	"github.com/trailgreen/carbontrack/utils"
)

const tokenDuration = 72 * time.Hour

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// AuthController handles registration, login and profile management.
type AuthController struct {
	db      *gorm.DB
	streaks *services.StreakService
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB, streaks *services.StreakService) *AuthController {
	return &AuthController{db: db, streaks: streaks}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Location  *string `json:"location"`
	AvatarURL *string `json:"avatar_url"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// userView is the public shape of an account.
type userView struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Bio       string    `json:"bio"`
	Location  string    `json:"location"`
	AvatarURL string    `json:"avatar_url"`
	Provider  string    `json:"provider"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u *models.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Bio:       u.Bio,
		Location:  u.Location,
		AvatarURL: u.AvatarURL,
		Provider:  u.Provider,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// Register creates a new account and issues a token.
func (a *AuthController) Register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !usernameRe.MatchString(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40001, "username must be 3-32 characters: letters, digits, underscore")
		return
	}

	var count int64
	a.db.Model(&models.User{}).
		Where("username = ? OR email = ?", req.Username, req.Email).
		Count(&count)
	if count > 0 {
		utils.Error(ctx, http.StatusConflict, 40901, "username or email already taken")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Sugar.Errorw("password hash failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Provider:     "local",
		RegisterIP:   ctx.ClientIP(),
	}
	if err := a.db.Create(&user).Error; err != nil {
		// The pre-check races with concurrent registrations; the unique
		// index is the authority and its violation is still a conflict.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Error(ctx, http.StatusConflict, 40901, "username or email already taken")
			return
		}
		utils.Sugar.Errorw("user create failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50001, "could not create account")
		return
	}

	if err := a.streaks.EnsureRecord(ctx.Request.Context(), user.ID); err != nil {
		utils.Sugar.Errorw("streak record init failed", "user_id", user.ID, "error", err)
	}

	// Welcome mail is best effort; registration never fails on SMTP trouble.
	go func(email, username string) {
		body := fmt.Sprintf("Hi %s,\n\nWelcome to CarbonTrack. Log your first day's activity to start a streak.\n", username)
		if err := utils.SendMail(email, "Welcome to CarbonTrack", body); err != nil {
			utils.Sugar.Debugw("welcome mail not sent", "error", err)
		}
	}(user.Email, user.Username)

	token, err := utils.GenerateToken(user.ID, user.Username, tokenDuration)
	if err != nil {
		utils.Sugar.Errorw("token generation failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
		return
	}
	utils.Success(ctx, gin.H{"token": token, "user": toUserView(&user)})
}

// Login verifies credentials by username or email and issues a token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}

	var user models.User
	err := a.db.Where("username = ? OR email = ?", req.Username, strings.ToLower(req.Username)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !utils.CheckPassword(user.PasswordHash, req.Password)) {
		utils.Error(ctx, http.StatusUnauthorized, 40103, "incorrect username or password")
		return
	}
	if err != nil {
		utils.Sugar.Errorw("login lookup failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, tokenDuration)
	if err != nil {
		utils.Sugar.Errorw("token generation failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
		return
	}
	utils.Success(ctx, gin.H{"token": token, "user": toUserView(&user)})
}

// Logout revokes the presented token until its natural expiry.
func (a *AuthController) Logout(ctx *gin.Context) {
	header := ctx.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == "" {
		utils.Error(ctx, http.StatusBadRequest, 40000, "missing token")
		return
	}
	expiresAt := time.Now().Add(tokenDuration)
	if claims, err := utils.ParseToken(tokenString); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(tokenString, expiresAt)
	utils.Success(ctx, nil)
}

// Me returns the authenticated user's profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID := ctx.GetUint(middleware.ContextUserIDKey)
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40400, "user not found")
		return
	}
	utils.Success(ctx, toUserView(&user))
}

// UpdateProfile applies partial profile edits. Bio is sanitized against HTML injection.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	var req updateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}

	userID := ctx.GetUint(middleware.ContextUserIDKey)
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40400, "user not found")
		return
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Bio != nil {
		user.Bio = utils.Sanitize(strings.TrimSpace(*req.Bio))
	}
	if req.Location != nil {
		user.Location = strings.TrimSpace(*req.Location)
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}

	if err := a.db.Save(&user).Error; err != nil {
		utils.Sugar.Errorw("profile update failed", "user_id", userID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50002, "could not update profile")
		return
	}
	utils.Success(ctx, toUserView(&user))
}

// ChangePassword swaps the password after verifying the old one.
func (a *AuthController) ChangePassword(ctx *gin.Context) {
	var req changePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}

	userID := ctx.GetUint(middleware.ContextUserIDKey)
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40400, "user not found")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.OldPassword) {
		utils.Error(ctx, http.StatusUnauthorized, 40104, "old password is incorrect")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		utils.Sugar.Errorw("password hash failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
		return
	}
	user.PasswordHash = hash
	if err := a.db.Save(&user).Error; err != nil {
		utils.Sugar.Errorw("password change failed", "user_id", userID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50003, "could not change password")
		return
	}
	utils.Success(ctx, nil)
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	redirect := fmt.Sprintf("%s/api/v1/auth/oauth/%s/callback", cfg.OAuthRedirectBase, provider)
	switch provider {
	case "github":
		if cfg.GitHubClientID == "" {
			return nil, errors.New("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     oauthgithub.Endpoint,
			RedirectURL:  redirect,
			Scopes:       []string{"read:user", "user:email"},
		}, nil
	case "google":
		if cfg.GoogleClientID == "" {
			return nil, errors.New("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     oauthgoogle.Endpoint,
			RedirectURL:  redirect,
			Scopes:       []string{"openid", "email", "profile"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown oauth provider %q", provider)
	}
}

// OAuthRedirect sends the browser to the provider's consent page with a
// single-use CSRF state token.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	conf, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)
	ctx.Redirect(http.StatusFound, conf.AuthCodeURL(state))
}

type oauthIdentity struct {
	providerID string
	username   string
	email      string
	avatarURL  string
}

// OAuthCallback exchanges the code, resolves the provider identity and
// signs the user in, creating the local account on first visit.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	conf, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	if !utils.ConsumeState(ctx.Query("state")) {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid or expired oauth state")
		return
	}

	token, err := conf.Exchange(ctx.Request.Context(), ctx.Query("code"))
	if err != nil {
		utils.Sugar.Warnw("oauth code exchange failed", "provider", provider, "error", err)
		utils.Error(ctx, http.StatusUnauthorized, 40105, "oauth exchange failed")
		return
	}

	identity, err := fetchOAuthIdentity(ctx, conf, provider, token)
	if err != nil {
		utils.Sugar.Warnw("oauth identity fetch failed", "provider", provider, "error", err)
		utils.Error(ctx, http.StatusBadGateway, 50200, "could not fetch provider profile")
		return
	}

	user, err := a.findOrCreateOAuthUser(ctx, provider, identity)
	if err != nil {
		utils.Sugar.Errorw("oauth user upsert failed", "provider", provider, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50001, "could not create account")
		return
	}

	jwtToken, err := utils.GenerateToken(user.ID, user.Username, tokenDuration)
	if err != nil {
		utils.Sugar.Errorw("token generation failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
		return
	}
	utils.Success(ctx, gin.H{"token": jwtToken, "user": toUserView(user)})
}

func fetchOAuthIdentity(ctx *gin.Context, conf *oauth2.Config, provider string, token *oauth2.Token) (*oauthIdentity, error) {
	client := conf.Client(ctx.Request.Context(), token)
	client.Timeout = 10 * time.Second

	switch provider {
	case "github":
		var payload struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := fetchJSON(client, "https://api.github.com/user", &payload); err != nil {
			return nil, err
		}
		return &oauthIdentity{
			providerID: fmt.Sprintf("%d", payload.ID),
			username:   payload.Login,
			email:      payload.Email,
			avatarURL:  payload.AvatarURL,
		}, nil
	case "google":
		var payload struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := fetchJSON(client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
			return nil, err
		}
		username := payload.Name
		if username == "" && payload.Email != "" {
			username = strings.SplitN(payload.Email, "@", 2)[0]
		}
		return &oauthIdentity{
			providerID: payload.ID,
			username:   username,
			email:      payload.Email,
			avatarURL:  payload.Picture,
		}, nil
	}
	return nil, fmt.Errorf("unknown oauth provider %q", provider)
}

func fetchJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *AuthController) findOrCreateOAuthUser(ctx *gin.Context, provider string, id *oauthIdentity) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, id.providerID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Link by verified provider email when the account already exists locally.
	if id.email != "" {
		err = a.db.Where("email = ?", strings.ToLower(id.email)).First(&user).Error
		if err == nil {
			user.Provider = provider
			user.ProviderID = id.providerID
			if user.AvatarURL == "" {
				user.AvatarURL = id.avatarURL
			}
			if err := a.db.Save(&user).Error; err != nil {
				return nil, err
			}
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	user = models.User{
		Username:   a.ensureUniqueUsername(id.username),
		Email:      strings.ToLower(id.email),
		Provider:   provider,
		ProviderID: id.providerID,
		AvatarURL:  id.avatarURL,
		RegisterIP: ctx.ClientIP(),
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	if err := a.streaks.EnsureRecord(ctx.Request.Context(), user.ID); err != nil {
		utils.Sugar.Errorw("streak record init failed", "user_id", user.ID, "error", err)
	}
	return &user, nil
}

// ensureUniqueUsername normalizes a provider name into a free local username.
func (a *AuthController) ensureUniqueUsername(candidate string) string {
	candidate = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return -1
		}
	}, candidate)
	if len(candidate) < 3 {
		candidate = "user_" + candidate
	}
	if len(candidate) > 24 {
		candidate = candidate[:24]
	}

	name := candidate
	for i := 0; i < 5; i++ {
		var count int64
		a.db.Model(&models.User{}).Where("username = ?", name).Count(&count)
		if count == 0 {
			return name
		}
		name = fmt.Sprintf("%s_%s", candidate, uuid.NewString()[:8])
	}
	return name
}
