package helper

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	userModel "vulcan_backend/internals/features/users/user/model"
)

// Locals keys set by the auth middleware.
const (
	LocUser   = "user"
	LocUserID = "user_id"
	LocRole   = "userRole"
)

// CurrentUser returns the authenticated user stored by the auth middleware.
func CurrentUser(c *fiber.Ctx) (*userModel.UserModel, error) {
	u, ok := c.Locals(LocUser).(*userModel.UserModel)
	if !ok || u == nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "not logged in")
	}
	return u, nil
}

// GetUserIDFromToken reads c.Locals("user_id") as a UUID.
func GetUserIDFromToken(c *fiber.Ctx) (uuid.UUID, error) {
	switch t := c.Locals(LocUserID).(type) {
	case uuid.UUID:
		if t != uuid.Nil {
			return t, nil
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			break
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "user id in token is invalid")
		}
		return id, nil
	}
	return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "not logged in")
}

// ParamUUID parses a route param as a UUID.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params(name)))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, name+" is not a valid id")
	}
	return id, nil
}
