package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bloggers/internal/auth/providers"
	"github.com/charlesng35/bloggers/internal/middleware"
)

// requestContext returns the context the directory and gateway calls run under.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// credentialsFrom attaches the caller's address and agent to a login attempt for audit logging.
func credentialsFrom(c *gin.Context, identifier, password string) providers.AuthenticateInput {
	input := providers.AuthenticateInput{
		Identifier: identifier,
		Password:   password,
	}
	if c != nil && c.Request != nil {
		input.IPAddress = c.ClientIP()
		input.UserAgent = c.Request.UserAgent()
	}
	return input
}

// authenticatedUserID is the subject the auth middleware bound to the request, or "".
func authenticatedUserID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(middleware.CtxUserIDKey)
}
