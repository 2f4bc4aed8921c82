package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (app *application) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(app.notFoundErrorResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedErrorResponse)

	router.HandlerFunc(http.MethodGet, "/api/healthcheck", app.healthCheckHandler)

	// user directory
	router.HandlerFunc(http.MethodPost, "/api/users/register", app.registerUserHandler)
	router.HandlerFunc(http.MethodPost, "/api/users/login", app.loginUserHandler)
	router.HandlerFunc(http.MethodPost, "/api/users/logout", app.requireAuthUser(app.logoutUserHandler))
	router.HandlerFunc(http.MethodGet, "/api/users/profile", app.requireAuthUser(app.getProfileHandler))
	router.HandlerFunc(http.MethodPut, "/api/users/profile", app.requireAuthUser(app.updateProfileHandler))

	// blogs, comments and replies
	router.HandlerFunc(http.MethodGet, "/api/blogs", app.getAllBlogsHandler)
	router.HandlerFunc(http.MethodPost, "/api/blogs", app.requireAuthUser(app.createBlogHandler))
	router.HandlerFunc(http.MethodGet, "/api/blogs/:id", app.getBlogHandler)
	router.HandlerFunc(http.MethodPut, "/api/blogs/:id", app.requireAuthUser(app.updateBlogHandler))
	router.HandlerFunc(http.MethodDelete, "/api/blogs/:id", app.requireAuthUser(app.deleteBlogHandler))
	router.HandlerFunc(http.MethodPost, "/api/blogs/:id/comments", app.requireAuthUser(app.addCommentHandler))
	router.HandlerFunc(http.MethodPost, "/api/blogs/:id/comments/:commentId/replies", app.requireAuthUser(app.addReplyHandler))

	router.ServeFiles("/uploads/*filepath", http.Dir(app.uploads.Dir()))

	return app.recoverPanic(app.logRequest(app.enableCORS(app.authenticate(router))))
}
