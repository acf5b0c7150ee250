// Package call hands clients the credentials they need to join the video
// call of an appointment. The call room id is the appointment id.
package call

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNotConfigured = errors.New("call credentials are not configured")

// JoinClaims identify one participant of one room.
type JoinClaims struct {
	jwt.RegisteredClaims
	AppID    string `json:"app_id"`
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// TokenIssuer signs room join tokens with the call provider's server secret.
type TokenIssuer struct {
	appID  string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(appID, serverSecret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{appID: appID, secret: []byte(serverSecret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Issue(roomID, userID, userName string) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrNotConfigured
	}
	now := t.now()
	claims := JoinClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		AppID:    t.appID,
		RoomID:   roomID,
		UserID:   userID,
		UserName: userName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign join token: %w", err)
	}
	return signed, nil
}

// Parse validates a join token issued by t.
func (t *TokenIssuer) Parse(token string) (*JoinClaims, error) {
	claims := &JoinClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
