package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"vitrine/internal/auth"
	"vitrine/internal/profiles"
)

// ProfileLocalKey is the fiber.Locals key holding the authorized *profiles.Profile.
const ProfileLocalKey = "profile"

// ProfileLookup loads a profile by id.
type ProfileLookup func(ctx context.Context, id uint) (*profiles.Profile, error)

// AdminGate configures RequireAdmin.
type AdminGate struct {
	Tokens *auth.TokenManager
	Lookup ProfileLookup
	Logger *slog.Logger
	// OnReject, when set, is called with the response status of every
	// rejected request.
	OnReject func(status int)
}

// RequireAdmin lets a request through only when it carries a valid bearer
// token for a profile with the admin role. A missing or invalid token is
// rejected with 401 without touching the database; an unknown profile or a
// non-admin role is rejected with 403.
func RequireAdmin(gate AdminGate) fiber.Handler {
	logger := gate.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reject := func(c *fiber.Ctx, status int, message string) error {
		if gate.OnReject != nil {
			gate.OnReject(status)
		}
		return c.Status(status).JSON(fiber.Map{
			"error": message,
			"code":  status,
		})
	}

	return func(c *fiber.Ctx) error {
		token, err := auth.ExtractBearer(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return reject(c, fiber.StatusUnauthorized, "Unauthorized")
		}

		claims, err := gate.Tokens.Validate(token)
		if err != nil {
			logger.Debug("Rejected bearer token", slog.Any("error", err))
			return reject(c, fiber.StatusUnauthorized, "Unauthorized")
		}

		profileID, err := claims.ProfileID()
		if err != nil {
			return reject(c, fiber.StatusUnauthorized, "Unauthorized")
		}

		profile, err := gate.Lookup(c.UserContext(), profileID)
		if err != nil {
			if !errors.Is(err, profiles.ErrProfileNotFound) {
				logger.Error("Failed to load profile",
					slog.Uint64("profile_id", uint64(profileID)),
					slog.Any("error", err))
			}
			return reject(c, fiber.StatusForbidden, "Forbidden")
		}

		if !profile.IsAdmin() {
			logger.Info("Non-admin profile denied",
				slog.Uint64("profile_id", uint64(profile.ID)),
				slog.String("role", profile.Role))
			return reject(c, fiber.StatusForbidden, "Forbidden")
		}

		c.Locals(ProfileLocalKey, profile)
		return c.Next()
	}
}

// CurrentProfile returns the profile stored by RequireAdmin, or nil.
func CurrentProfile(c *fiber.Ctx) *profiles.Profile {
	profile, _ := c.Locals(ProfileLocalKey).(*profiles.Profile)
	return profile
}
