package handlers

import (
	"bounty-board-system/middleware"
	"bounty-board-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPayoutRoutes(app *fiber.App, payoutService *services.PayoutService) {
	// 🔐 All payout routes require user context
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/projects/:project_id/payouts/preview", payoutService.PreviewPayoutEndpoint)
	secured.Post("/projects/:project_id/payouts", payoutService.CreatePayoutEndpoint)
	secured.Get("/projects/:project_id/payouts", payoutService.ListProjectPayouts)
	secured.Get("/payouts/:id", payoutService.GetPayout)
	secured.Post("/payouts/:id/sent", payoutService.MarkSentEndpoint)
	secured.Post("/payouts/:id/confirm", payoutService.ConfirmReceiptEndpoint)
}
