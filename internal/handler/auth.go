package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
	"google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/auth"
	"github.com/jun/notabl/backend/internal/model"
)

const stateCookieMaxAge = 600

// GoogleUser is the identity returned by the userinfo endpoint.
type GoogleUser struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// UserInfoFunc fetches the identity behind an OAuth token.
type UserInfoFunc func(ctx context.Context, cfg *xoauth2.Config, token *xoauth2.Token) (*GoogleUser, error)

// googleUserInfo calls the Google userinfo endpoint.
func googleUserInfo(ctx context.Context, cfg *xoauth2.Config, token *xoauth2.Token) (*GoogleUser, error) {
	svc, err := oauth2.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return &GoogleUser{ID: info.Id, Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

// AuthConfig holds the settings of AuthHandler.
type AuthConfig struct {
	JWTSecret   string
	FrontendURL string
	Cookies     CookieOptions
}

// AuthHandler handles authentication requests.
type AuthHandler struct {
	authService     *auth.AuthService
	storageProvider adapter.StorageProvider
	cfg             AuthConfig
	userInfo        UserInfoFunc
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *auth.AuthService, sp adapter.StorageProvider, cfg AuthConfig) *AuthHandler {
	return &AuthHandler{authService: s, storageProvider: sp, cfg: cfg, userInfo: googleUserInfo}
}

// WithUserInfo replaces the Google userinfo lookup.
func (h *AuthHandler) WithUserInfo(fn UserInfoFunc) *AuthHandler {
	h.userInfo = fn
	return h
}

func (h *AuthHandler) redirect(location string, cookies ...string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": cookies,
		},
	}
}

func (h *AuthHandler) frontend(query url.Values) string {
	return h.cfg.FrontendURL + "/?" + query.Encode()
}

func (h *AuthHandler) sessionCookie(token string, maxAge int) string {
	return h.cfg.Cookies.cookie(auth.SessionCookie, token, maxAge, false)
}

// Login initiates the Google OAuth2 flow. The state is bound to the browser with a cookie.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state, err := auth.NewState()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate oauth state")
		return errorResponse(http.StatusInternalServerError, "Failed to start login"), nil
	}
	stateCookie := h.cfg.Cookies.cookie(auth.StateCookie, state, stateCookieMaxAge, true)
	return h.redirect(h.authService.GenerateAuthURL(state), stateCookie), nil
}

// Callback handles the OAuth2 callback from Google.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	clearState := h.cfg.Cookies.cookie(auth.StateCookie, "", 0, true)

	if reason := req.QueryStringParameters["error"]; reason != "" {
		log.Warn().Str("reason", reason).Msg("oauth login denied")
		return h.redirect(h.frontend(url.Values{"error": {reason}}), clearState), nil
	}

	state := req.QueryStringParameters["state"]
	if state == "" || state != getCookie(req, auth.StateCookie) {
		return errorResponse(http.StatusBadRequest, "Invalid OAuth state"), nil
	}

	code := req.QueryStringParameters["code"]
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Missing code"), nil
	}

	token, err := h.authService.ExchangeCode(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("ExchangeCode failed")
		return errorResponse(http.StatusInternalServerError, "Failed to exchange code"), nil
	}

	user, err := h.userInfo(ctx, h.authService.Config(), token)
	if err != nil {
		log.Error().Err(err).Msg("userinfo lookup failed")
		return errorResponse(http.StatusInternalServerError, "Failed to get user info"), nil
	}

	// The Google subject ID is the user ID.
	userID := user.ID
	if _, err := h.authService.SaveProfile(ctx, userID, auth.Profile{Name: user.Name, Email: user.Email, Avatar: user.Picture}); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("SaveProfile failed")
		return errorResponse(http.StatusInternalServerError, "Failed to save user profile"), nil
	}
	if err := h.authService.SaveToken(ctx, userID, token); err != nil {
		// Google only returns a refresh token on the first consent.
		log.Warn().Err(err).Str("user_id", userID).Msg("refresh token not saved")
	}

	if _, err := h.storageProvider.GetAdapter(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("GetAdapter failed")
		return errorResponse(http.StatusInternalServerError, "Failed to prepare storage"), nil
	}

	signed, err := auth.IssueSessionToken(h.cfg.JWTSecret, auth.Identity{
		UserID:  userID,
		Email:   user.Email,
		Name:    user.Name,
		Picture: user.Picture,
	}, auth.SessionTTL)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	log.Info().Str("user_id", userID).Msg("user logged in")
	return h.redirect(
		h.frontend(url.Values{"success": {"true"}}),
		h.sessionCookie(signed, int(auth.SessionTTL.Seconds())),
		clearState,
	), nil
}

// DemoLogin issues a temporary session for a throw-away account without Google OAuth.
func (h *AuthHandler) DemoLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := model.DemoUserPrefix + uuid.New().String()
	profile := auth.Profile{Name: "Demo User", Email: "demo@notabl.local"}

	if _, err := h.authService.SaveProfile(ctx, userID, profile); err != nil {
		log.Error().Err(err).Msg("DemoLogin SaveProfile failed")
		return errorResponse(http.StatusInternalServerError, "Failed to create demo user"), nil
	}

	// GetAdapter creates the reserved folder.
	storage, err := h.storageProvider.GetAdapter(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("DemoLogin GetAdapter failed")
		return errorResponse(http.StatusInternalServerError, "Failed to get storage adapter"), nil
	}
	if _, err := storage.CreateNote(ctx, adapter.NoteInput{
		Title:    "Welcome to Notabl!",
		Content:  welcomeNote,
		Summary:  "A quick tour of what Notabl can do.",
		FolderID: model.ReservedFolderID,
	}); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("DemoLogin welcome note not created")
	}

	signed, err := auth.IssueSessionToken(h.cfg.JWTSecret, auth.Identity{
		UserID: userID,
		Email:  profile.Email,
		Name:   profile.Name,
	}, auth.DemoSessionTTL)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	log.Info().Str("user_id", userID).Msg("demo user created")
	return h.redirect(
		h.frontend(url.Values{"token": {signed}}),
		h.sessionCookie(signed, int(auth.DemoSessionTTL.Seconds())),
	), nil
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := success()
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {h.sessionCookie("", 0)},
	}
	return resp, nil
}

// profile builds the profile returned to clients. Users without a stored
// record (e.g. the record was lost) fall back to the session claims.
func (h *AuthHandler) profile(ctx context.Context, claims *auth.Claims) (*model.UserProfile, error) {
	record, err := h.authService.GetUserToken(ctx, claims.Subject)
	if errors.Is(err, auth.ErrUserNotFound) {
		record = &model.UserToken{
			UserID: claims.Subject,
			Name:   claims.Name,
			Email:  claims.Email,
			Avatar: claims.Picture,
			Plan:   model.PlanFree,
		}
	} else if err != nil {
		return nil, err
	}
	if !record.Plan.Valid() {
		record.Plan = model.PlanFree
	}

	storage, err := h.storageProvider.GetAdapter(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	used, err := storage.CountNotes(ctx)
	if err != nil {
		return nil, err
	}

	return &model.UserProfile{
		ID:         record.UserID,
		Name:       record.Name,
		Email:      record.Email,
		Avatar:     record.Avatar,
		Plan:       record.Plan,
		NotesUsed:  used,
		NotesLimit: record.Plan.NotesLimit(),
	}, nil
}

// GetUser returns the current user's profile with the note quota counters.
func (h *AuthHandler) GetUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	claims, err := GetClaims(req, h.cfg.JWTSecret)
	if err != nil {
		return unauthorized(), nil
	}

	profile, err := h.profile(ctx, claims)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.Subject).Msg("GetUser failed")
		return errorResponse(http.StatusInternalServerError, "Failed to get user profile"), nil
	}
	return jsonResponse(http.StatusOK, profile), nil
}

// UpdateUser updates the user's name, avatar or plan.
func (h *AuthHandler) UpdateUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	claims, err := GetClaims(req, h.cfg.JWTSecret)
	if err != nil {
		return unauthorized(), nil
	}

	var update auth.ProfileUpdate
	if err := decodeBody(req, &update); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	_, err = h.authService.UpdateProfile(ctx, claims.Subject, update)
	if errors.Is(err, auth.ErrUserNotFound) {
		// Create the record from the session claims, then apply the edit.
		if _, err = h.authService.SaveProfile(ctx, claims.Subject, auth.Profile{Name: claims.Name, Email: claims.Email, Avatar: claims.Picture}); err == nil {
			_, err = h.authService.UpdateProfile(ctx, claims.Subject, update)
		}
	}
	if err != nil {
		if errors.Is(err, auth.ErrInvalidProfile) {
			return errorResponse(http.StatusBadRequest, err.Error()), nil
		}
		log.Error().Err(err).Str("user_id", claims.Subject).Msg("UpdateProfile failed")
		return errorResponse(http.StatusInternalServerError, "Failed to update user settings"), nil
	}

	profile, err := h.profile(ctx, claims)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.Subject).Msg("GetUser failed")
		return errorResponse(http.StatusInternalServerError, "Failed to get user profile"), nil
	}
	return jsonResponse(http.StatusOK, profile), nil
}

const welcomeNote = `# Welcome to Notabl!

Notabl turns recordings, documents and videos into organized notes.

## Getting started
- **Record audio** and get a transcript summary
- **Upload a PDF** to turn it into a note
- **Paste a YouTube link** to save the video transcript with its details
- **Organize** notes into folders; *All notes* always lists everything

## Markdown
Notes support GitHub flavored Markdown:

| Feature | Example |
| :--- | :--- |
| Bold | **important** |
| Strikethrough | ~~done~~ |
| Code | ` + "`go test ./...`" + ` |

- [x] Open Notabl
- [ ] Create your first note
- [ ] Star the notes you use most

> Demo accounts are removed after a while. Sign in with Google to keep your notes.`
