package handlers

import (
	"bounty-board-system/middleware"
	"bounty-board-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBountyRoutes(app *fiber.App, bountyService *services.BountyService, submissionService *services.SubmissionService) {
	// 🔓 Public routes
	app.Get("/projects/:project_id/bounties", bountyService.ListProjectBounties)
	app.Get("/bounties/:id", bountyService.GetBounty)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Bounty management (founder only — enforced in the service)
	secured.Post("/projects/:project_id/bounties", bountyService.CreateBountyEndpoint)
	secured.Post("/bounties/:id/price", bountyService.PriceBountyEndpoint)
	secured.Post("/bounties/:id/close", bountyService.CloseBountyEndpoint)

	// Claims
	secured.Post("/bounties/:id/claim", bountyService.ClaimEndpoint)
	secured.Post("/claims/:claim_id/release", bountyService.ReleaseClaimEndpoint)
	secured.Get("/users/me/claims", bountyService.ListMyClaims)

	// Submissions
	secured.Post("/bounties/:bounty_id/submissions", submissionService.CreateSubmissionEndpoint)
	secured.Get("/bounties/:bounty_id/submissions", submissionService.ListForReview)
	secured.Post("/submissions/:id/submit", submissionService.SubmitEndpoint)
	secured.Post("/submissions/:id/withdraw", submissionService.WithdrawEndpoint)
	secured.Post("/submissions/:id/request-info", submissionService.RequestInfoEndpoint)
	secured.Post("/submissions/:id/approve", submissionService.ApproveEndpoint)
	secured.Post("/submissions/:id/reject", submissionService.RejectEndpoint)
	secured.Post("/submissions/:id/evidence", submissionService.UploadEvidenceEndpoint)
	secured.Get("/submissions/:id/events", submissionService.GetSubmissionEvents)
}
