// internals/middlewares/auth/auth_middleware.go
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	userModel "vulcan_backend/internals/features/users/user/model"
	helper "vulcan_backend/internals/helpers"
	"vulcan_backend/internals/helpers/apperr"
	helperAuth "vulcan_backend/internals/helpers/auth"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
)

// UserLookup is the slice of the store the middleware needs.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*userModel.UserModel, error)
}

type Options struct {
	Secret string
	Users  UserLookup
	Skew   time.Duration
	Clock  dbtime.Clock
}

// AuthMiddleware verifies the HS256 access token, loads the user and stores it
// in Locals. The role always comes from the users table, never from the token.
func AuthMiddleware(opts Options) fiber.Handler {
	log := logger.For("auth")
	if opts.Skew == 0 {
		opts.Skew = 30 * time.Second
	}
	now := opts.Clock.OrDefault()

	return func(c *fiber.Ctx) error {
		tokenString, err := extractBearerToken(c)
		if err != nil {
			return helper.JsonError(c, fiber.StatusUnauthorized, err.Error())
		}
		if opts.Secret == "" {
			log.Error().Msg("JWT secret is empty")
			return helper.JsonError(c, fiber.StatusInternalServerError, "")
		}

		claims := jwt.MapClaims{}
		parser := jwt.Parser{SkipClaimsValidation: true, ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
		if _, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(opts.Secret), nil
		}); err != nil {
			log.Debug().Err(err).Msg("token parse failed")
			return helper.JsonError(c, fiber.StatusUnauthorized, "unauthorized - token parse error")
		}

		if err := validateTokenExpiry(claims, now(), opts.Skew); err != nil {
			return helper.JsonError(c, fiber.StatusUnauthorized, "unauthorized - token expired")
		}

		userID, err := extractUserID(claims)
		if err != nil {
			return helper.JsonError(c, fiber.StatusUnauthorized, "unauthorized - invalid or missing user id")
		}

		user, err := opts.Users.GetUser(c.UserContext(), userID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return helper.JsonError(c, fiber.StatusUnauthorized, "unauthorized - user not found")
		case err != nil:
			log.Error().Err(err).Str("user_id", userID.String()).Msg("user lookup failed")
			return helper.JsonError(c, fiber.StatusInternalServerError, "")
		case !user.IsActive:
			return helper.JsonError(c, fiber.StatusForbidden, "account is deactivated")
		}

		c.Locals(helperAuth.LocUser, user)
		c.Locals(helperAuth.LocUserID, user.ID.String())
		c.Locals(helperAuth.LocRole, user.Role)
		return c.Next()
	}
}
