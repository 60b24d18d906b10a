package handlers

import (
	"context"
	stdErrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/bloggers/internal/auth"
	"github.com/charlesng35/bloggers/internal/auth/providers"
	"github.com/charlesng35/bloggers/internal/directory"
	"github.com/charlesng35/bloggers/internal/models"
	"github.com/charlesng35/bloggers/internal/services"
	"github.com/charlesng35/bloggers/pkg/errors"
	"github.com/charlesng35/bloggers/pkg/logger"
	"github.com/charlesng35/bloggers/pkg/response"
)

// Registrar is the part of the registration workflow the HTTP layer drives.
type Registrar interface {
	Register(ctx context.Context, input services.RegistrationInput) (*models.User, error)
	ResendCode(ctx context.Context, loginOrEmail string) error
	Confirm(ctx context.Context, code string) (*models.User, error)
}

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, input providers.AuthenticateInput) (*models.Identity, error)
}

// AuthHandler manages registration, confirmation, login and the current identity.
type AuthHandler struct {
	registrar     Registrar
	authenticator Authenticator
	jwt           *iauth.JWTService
	users         directory.Directory
}

func NewAuthHandler(registrar Registrar, authenticator Authenticator, jwt *iauth.JWTService, users directory.Directory) *AuthHandler {
	return &AuthHandler{registrar: registrar, authenticator: authenticator, jwt: jwt, users: users}
}

type registrationRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=10,login"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=20"`
}

type confirmationRequest struct {
	Code string `json:"code" validate:"required"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type loginRequest struct {
	LoginOrEmail string `json:"loginOrEmail" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// POST /api/auth/registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req registrationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := h.registrar.Register(requestContext(c), services.RegistrationInput{
		Login:    strings.TrimSpace(req.Login),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, "registration", registrationError(err, ""))
		return
	}

	response.NoContent(c)
}

// POST /api/auth/registration-confirmation
func (h *AuthHandler) ConfirmRegistration(c *gin.Context) {
	var req confirmationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.registrar.Confirm(requestContext(c), req.Code); err != nil {
		h.fail(c, "confirmation", registrationError(err, "code"))
		return
	}

	response.NoContent(c)
}

// POST /api/auth/registration-email-resending
func (h *AuthHandler) ResendEmail(c *gin.Context) {
	var req resendRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.registrar.ResendCode(requestContext(c), strings.TrimSpace(req.Email)); err != nil {
		h.fail(c, "resend", registrationError(err, "email"))
		return
	}

	response.NoContent(c)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity, err := h.authenticator.Authenticate(requestContext(c), credentialsFrom(c, req.LoginOrEmail, req.Password))
	if err != nil {
		if stdErrors.Is(err, providers.ErrInvalidCredentials) {
			response.Error(c, errors.ErrInvalidCredentials)
			return
		}
		h.fail(c, "login", errors.ErrInternalServer.WithInternal(err))
		return
	}

	token, err := h.jwt.IssueToken(*identity)
	if err != nil {
		h.fail(c, "login", errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.jwt.TTL().Seconds()),
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := authenticatedUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.FindByID(requestContext(c), userID)
	if err != nil {
		if stdErrors.Is(err, directory.ErrNotFound) {
			// token outlived its account
			response.Error(c, errors.ErrUnauthorized)
			return
		}
		h.fail(c, "me", errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id": user.ID,
		"login":   user.Login,
		"email":   user.Email,
	})
}

// fail logs server-side failures with their internal cause and writes the client error.
func (h *AuthHandler) fail(c *gin.Context, op string, appErr *errors.AppError) {
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.WithModule("auth").Error("request failed",
			zap.String("operation", op),
			zap.String("code", appErr.Code),
			zap.Error(appErr.Internal),
		)
	}
	response.Error(c, appErr)
}

// registrationError maps workflow sentinels onto client errors. field names the
// request field that lookup failures are reported against.
func registrationError(err error, field string) *errors.AppError {
	switch {
	case stdErrors.Is(err, services.ErrInvalidInput):
		return errors.NewBadRequest("login, email and password are required")
	case stdErrors.Is(err, services.ErrDuplicateIdentity):
		return errors.ErrDuplicateIdentity.WithField(services.DuplicateField(err))
	case stdErrors.Is(err, services.ErrNotFound):
		return errors.NewBadRequest(notFoundMessage(field)).WithField(field)
	case stdErrors.Is(err, services.ErrCodeExpired):
		return errors.NewBadRequest("confirmation code has expired").WithField(field)
	case stdErrors.Is(err, services.ErrAlreadyConfirmed):
		return errors.NewBadRequest("email is already confirmed").WithField(field)
	// an inconsistency may also carry the dispatch failure that triggered it
	case stdErrors.Is(err, services.ErrInternalInconsistency):
		return errors.ErrInternalInconsistency.WithInternal(err)
	case stdErrors.Is(err, services.ErrDispatchFailure):
		return errors.ErrDispatchFailure.WithInternal(err)
	default:
		return errors.ErrInternalServer.WithInternal(err)
	}
}

func notFoundMessage(field string) string {
	if field == "code" {
		return "confirmation code is invalid or already used"
	}
	return "no pending registration for this email"
}
