// Package auth handles the Google OAuth2 flow, refresh-token storage
// and the user profile record.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/notabl/backend/internal/crypto"
	"github.com/jun/notabl/backend/internal/model"
	"golang.org/x/oauth2"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrNoRefreshToken = errors.New("no refresh token in response")
	ErrInvalidProfile = errors.New("invalid profile")
)

// DynamoAPI is the subset of *dynamodb.Client methods used by AuthService.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Profile is the identity information received at login.
type Profile struct {
	Name   string
	Email  string
	Avatar string
}

// ProfileUpdate describes the user-editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name   *string     `json:"name"`
	Avatar *string     `json:"avatar"`
	Plan   *model.Plan `json:"plan"`
}

// AuthService handles OAuth2 authentication flows and token management.
type AuthService struct {
	oauthConfig  *oauth2.Config
	dynamoClient DynamoAPI
	tableName    string
	kmsService   crypto.Encryptor

	// In-memory fallback
	tokens map[string]model.UserToken
	mu     sync.RWMutex

	now func() time.Time
}

// NewAuthService creates a new AuthService.
// The oauthConfig should be constructed by the caller (e.g., from environment variables).
// A nil dynamoClient keeps the records in memory.
func NewAuthService(oauthConfig *oauth2.Config, dynamoClient DynamoAPI, tableName string, kmsService crypto.Encryptor) *AuthService {
	return &AuthService{
		oauthConfig:  oauthConfig,
		dynamoClient: dynamoClient,
		tableName:    tableName,
		kmsService:   kmsService,
		tokens:       make(map[string]model.UserToken),
		now:          time.Now,
	}
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// GenerateAuthURL returns the URL to redirect the user to for Google login.
func (s *AuthService) GenerateAuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for an access token.
func (s *AuthService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauthConfig.Exchange(ctx, code)
}

// SaveToken encrypts the refresh token and stores it, keeping the existing profile fields.
func (s *AuthService) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	if token.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	encrypted, err := s.kmsService.Encrypt(ctx, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	record, err := s.getOrNew(ctx, userID)
	if err != nil {
		return err
	}
	record.EncryptedRefreshToken = encrypted
	record.UpdatedAt = s.now()
	return s.put(ctx, *record)
}

// SaveProfile stores the identity received at login. The plan of an existing user is kept.
func (s *AuthService) SaveProfile(ctx context.Context, userID string, p Profile) (*model.UserToken, error) {
	record, err := s.getOrNew(ctx, userID)
	if err != nil {
		return nil, err
	}
	record.Name = p.Name
	record.Email = p.Email
	if p.Avatar != "" {
		record.Avatar = p.Avatar
	}
	record.UpdatedAt = s.now()
	if err := s.put(ctx, *record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateProfile applies user edits to an existing profile.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*model.UserToken, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidProfile)
	}
	if u.Plan != nil && !u.Plan.Valid() {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidProfile, *u.Plan)
	}

	record, err := s.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		record.Name = strings.TrimSpace(*u.Name)
	}
	if u.Avatar != nil {
		record.Avatar = *u.Avatar
	}
	if u.Plan != nil {
		record.Plan = *u.Plan
	}
	record.UpdatedAt = s.now()
	if err := s.put(ctx, *record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetUserToken retrieves the stored record of a user.
func (s *AuthService) GetUserToken(ctx context.Context, userID string) (*model.UserToken, error) {
	if s.dynamoClient == nil {
		s.mu.RLock()
		t, ok := s.tokens[userID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrUserNotFound
		}
		return &t, nil
	}

	out, err := s.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, ErrUserNotFound
	}

	var userToken model.UserToken
	if err := attributevalue.UnmarshalMap(out.Item, &userToken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user token: %w", err)
	}
	return &userToken, nil
}

// GetClient returns an authenticated http.Client for the user.
func (s *AuthService) GetClient(ctx context.Context, userID string) (*http.Client, error) {
	userToken, err := s.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userToken.EncryptedRefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	refreshToken, err := s.kmsService.Decrypt(ctx, userToken.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       s.now().Add(-1 * time.Hour), // Force refresh
	}
	return oauth2.NewClient(ctx, s.oauthConfig.TokenSource(ctx, token)), nil
}

func (s *AuthService) getOrNew(ctx context.Context, userID string) (*model.UserToken, error) {
	record, err := s.GetUserToken(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return &model.UserToken{UserID: userID, Plan: model.PlanFree}, nil
	}
	return record, err
}

func (s *AuthService) put(ctx context.Context, record model.UserToken) error {
	if s.dynamoClient == nil {
		s.mu.Lock()
		s.tokens[record.UserID] = record
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal user token: %w", err)
	}
	_, err = s.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save token to DynamoDB: %w", err)
	}
	return nil
}
