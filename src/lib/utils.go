package lib

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/theleywin/workkie/src/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrInvalidToken = errors.New("invalid token")

// Returns a map with a message key for API responses
func MessageResponse(message string) fiber.Map {
	return fiber.Map{
		"message": message,
	}
}

// Generates a JWT token carrying the identity
func GenerateJWT(secret string, identity models.Identity) (string, error) {
	claims := jwt.MapClaims{
		"userId":   identity.UserID.Hex(),
		"username": identity.Username,
		"jti":      uuid.NewString(),
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Verifies a JWT token and returns the identity it was issued for
func VerifyJWT(secret string, tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	userID, _ := claims["userId"].(string)
	username, _ := claims["username"].(string)
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil || username == "" {
		return models.Identity{}, ErrInvalidToken
	}

	return models.Identity{UserID: objectID, Username: username}, nil
}
