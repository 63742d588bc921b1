package app

import "github.com/gin-gonic/gin"

// Register mounts every route on router. The OAuth callback stays outside
// the authenticated group since Google redirects the browser to it.
func (a *App) Register(router *gin.Engine) {
	router.GET("/oauth2callback", a.OAuthCallbackHandler)

	api := router.Group("/api", AuthMiddleware(a.Auth))
	{
		api.GET("/me", a.MeHandler)
		api.GET("/agenda", a.ListAgendaHandler)
		api.GET("/agenda.ics", a.AgendaFeedHandler)

		api.GET("/availability", a.MonthAvailabilityHandler)
		api.GET("/availability/check", a.CheckSlotHandler)

		events := api.Group("/events")
		{
			events.POST("", a.CreateEventHandler)
			events.PUT("/:id", a.UpdateEventHandler)
			events.DELETE("/:id", a.DeleteEventHandler)
		}

		records := api.Group("/records")
		{
			records.GET("/:kind/:id", a.GetRecordHandler)
			records.DELETE("/:kind/:id", a.DeleteRecordHandler)
			records.GET("/:kind/:id/lineage", a.LineageHandler)
		}

		visits := api.Group("/visits")
		{
			visits.POST("", a.CreateVisitHandler)
			visits.POST("/:key/*action", a.VisitActionHandler)
		}

		calendar := api.Group("/calendar")
		{
			calendar.GET("/auth", a.CalendarAuthHandler)
			calendar.POST("/sync", a.CalendarSyncHandler)
		}
	}
}
