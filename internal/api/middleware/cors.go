package middleware

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// CORS allows browser dashboards on other origins to call the API.
func CORS() func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
}
