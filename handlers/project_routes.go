package handlers

import (
	"bounty-board-system/middleware"
	"bounty-board-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProjectRoutes(app *fiber.App, projectService *services.ProjectService) {
	// 🔓 Public routes
	app.Get("/projects/by-slug/:slug", projectService.GetProjectBySlug)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/projects", projectService.CreateProjectEndpoint)
	secured.Get("/projects/:id", projectService.GetProject)
	secured.Patch("/projects/:id", projectService.UpdateProjectEndpoint)

	// Reward pools (founder only — enforced in the service)
	secured.Post("/projects/:project_id/pools", projectService.CreatePoolEndpoint)
	secured.Patch("/pools/:pool_id", projectService.UpdatePoolEndpoint)
	secured.Get("/pools/:pool_id/expansions", projectService.GetPoolExpansionHistory)
}
