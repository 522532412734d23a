package handler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jun/notabl/backend/internal/auth"
	"github.com/jun/notabl/backend/internal/handler"
)

func TestGetUserID_BearerToken(t *testing.T) {
	req := events.APIGatewayProxyRequest{
		Headers: map[string]string{
			"Authorization": "Bearer " + makeToken(testUserID),
		},
	}

	userID, err := handler.GetUserID(req, testJWTSecret)
	if err != nil {
		t.Fatalf("GetUserID failed: %v", err)
	}
	if userID != testUserID {
		t.Errorf("Expected userID '%s', got '%s'", testUserID, userID)
	}
}

func TestGetUserID_Cookie(t *testing.T) {
	req := events.APIGatewayProxyRequest{
		Headers: map[string]string{
			"cookie": "oauth_state=abc; session_token=" + makeToken(testUserID),
		},
	}

	userID, err := handler.GetUserID(req, testJWTSecret)
	if err != nil {
		t.Fatalf("GetUserID from cookie failed: %v", err)
	}
	if userID != testUserID {
		t.Errorf("Expected userID '%s', got '%s'", testUserID, userID)
	}
}

func TestGetUserID_NoToken(t *testing.T) {
	req := events.APIGatewayProxyRequest{Headers: map[string]string{}}

	_, err := handler.GetUserID(req, testJWTSecret)
	if !errors.Is(err, handler.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestGetUserID_InvalidTokens(t *testing.T) {
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUserID,
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	otherSecret, _ := auth.IssueSessionToken("other-secret", auth.Identity{UserID: testUserID}, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "invalid.token.here"},
		{"expired", expired},
		{"no subject", noSubject},
		{"wrong secret", otherSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := events.APIGatewayProxyRequest{
				Headers: map[string]string{"Authorization": "Bearer " + tt.token},
			}
			if _, err := handler.GetUserID(req, testJWTSecret); !errors.Is(err, handler.ErrUnauthorized) {
				t.Errorf("Expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestGetClaims_Profile(t *testing.T) {
	token, err := auth.IssueSessionToken(testJWTSecret, auth.Identity{
		UserID:  testUserID,
		Email:   "ada@example.com",
		Name:    "Ada",
		Picture: "https://example.com/ada.png",
	}, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	claims, err := handler.GetClaims(events.APIGatewayProxyRequest{
		Headers: map[string]string{"Authorization": "Bearer " + token},
	}, testJWTSecret)
	if err != nil {
		t.Fatalf("GetClaims failed: %v", err)
	}
	if claims.Email != "ada@example.com" || claims.Name != "Ada" || claims.Picture != "https://example.com/ada.png" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}
