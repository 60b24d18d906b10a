package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bloggers/internal/handlers"
)

type authRouteDeps struct {
	Handler     *handlers.AuthHandler
	RequireAuth gin.HandlerFunc
	Limit       gin.HandlerFunc
}

func registerAuthRoutes(api *gin.RouterGroup, deps authRouteDeps) {
	public := api.Group("/auth")
	public.Use(deps.Limit)
	{
		public.POST("/registration", deps.Handler.Register)
		public.POST("/registration-confirmation", deps.Handler.ConfirmRegistration)
		public.POST("/registration-email-resending", deps.Handler.ResendEmail)
		public.POST("/login", deps.Handler.Login)
	}

	api.GET("/auth/me", deps.RequireAuth, deps.Handler.Me)
}
