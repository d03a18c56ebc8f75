package app

// initDefaultRoutes initializes the applications default routes.
//  These are the routes which always are the same in every application.
//  Things like user api, version, ...
func (app *App) initDefaultRoutes() {
	api := app.web.Group("/")
	if app.config.Webserver.Webservices["version"] {
		api.Get("/version", app.HandleVersion())
	}
	if app.config.Webserver.Webservices["health"] {
		api.Get("/health", app.HandleHealth())
	}
	if app.config.Webserver.Webservices["frames"] {
		api.Get("/frames", app.HandleFrames())
	}
	if app.config.Webserver.Webservices["markers"] {
		api.Get("/markers", app.HandleMarkers())
	}
	if app.config.Webserver.Webservices["dump"] {
		api.Get("/dump", app.HandleDump())
	}
	if app.config.Webserver.Webservices["progress"] {
		api.Get("/progress", app.HandleProgress())
	}
}
