package http

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"vitrine/internal/auth"
	"vitrine/internal/profiles"
	"vitrine/internal/validation"
)

// TokenRequest is the body of POST /auth/v1/token.
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

// TokenResponse carries a signed bearer token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewTokenAction exchanges email and password for a bearer token.
func NewTokenAction(tokens *auth.TokenManager) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		var req TokenRequest
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request",
				"code":  fiber.StatusBadRequest,
			})
		}
		if err := validation.Struct(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
				"code":  fiber.StatusBadRequest,
			})
		}

		profile, err := profiles.Authenticate(ctx.UserContext(), ctx.DB(), req.Email, req.Password)
		if err != nil {
			if !errors.Is(err, profiles.ErrInvalidCredentials) {
				ctx.Logger.Error("Failed to authenticate profile", slog.Any("error", err))
				return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Authentication failed",
					"code":  fiber.StatusInternalServerError,
				})
			}
			// Same response whether the email exists or not.
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid email or password",
				"code":  fiber.StatusUnauthorized,
			})
		}

		token, expiresAt, err := tokens.Issue(profile.ID, profile.Email)
		if err != nil {
			ctx.Logger.Error("Failed to issue token", slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Authentication failed",
				"code":  fiber.StatusInternalServerError,
			})
		}

		ctx.Logger.Info("Issued token", slog.Uint64("profile_id", uint64(profile.ID)))
		return ctx.JSON(TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   expiresAt,
		})
	}
}
