package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const seatTokenIssuer = "tictactoe-rooms"

// Seat identifies who holds which mark in which session.
type Seat struct {
	SessionID  string      `json:"sid"`
	Mark       entity.Mark `json:"mark"`
	PlayerName string      `json:"name"`
}

type seatClaims struct {
	Seat
	jwt.RegisteredClaims
}

// SeatTokenService - issues and verifies the tokens clients present when they move.
type SeatTokenService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewSeatTokenService(secretKey string, ttl time.Duration) *SeatTokenService {
	return &SeatTokenService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (that *SeatTokenService) Generate(seat Seat) (string, error) {
	if !seat.Mark.IsValid() {
		return "", fmt.Errorf("%w: mark %q", apperror.ErrInvalidInput, seat.Mark)
	}

	issuedAt := that.now()

	claims := seatClaims{
		Seat: seat,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    seatTokenIssuer,
			Subject:   seat.SessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(that.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(that.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (that *SeatTokenService) Parse(tokenString string) (Seat, error) {
	claims := &seatClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return that.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(seatTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(that.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Seat{}, fmt.Errorf("%w: token expired", apperror.ErrInvalidToken)
		}
		return Seat{}, fmt.Errorf("%w: %w", apperror.ErrInvalidToken, err)
	}

	if claims.SessionID == "" || !claims.Mark.IsValid() {
		return Seat{}, fmt.Errorf("%w: incomplete seat", apperror.ErrInvalidToken)
	}

	return claims.Seat, nil
}
