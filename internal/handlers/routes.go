package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the authenticated API. The caller installs the auth
// middleware on r.
func RegisterRoutes(r chi.Router, ledger *LedgerHandler, publisher *PublisherHandler) {
	r.Post("/pay", ledger.Pay)
	r.Post("/verify", ledger.Verify)
	r.Post("/refund", ledger.Refund)
	r.Post("/access/qr", ledger.AccessQR)

	r.Route("/account", func(r chi.Router) {
		r.Get("/wallet", ledger.Wallet)
		r.Get("/transactions", ledger.Transactions)
		r.Post("/topup", ledger.Topup)
		r.Post("/topup/checkout", ledger.StartCheckout)
		r.Post("/topup/verify-session", ledger.VerifySession)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/users/{userId}/credit", ledger.AdminCredit)
		r.Get("/splits/{publisherId}", publisher.GetSplits)
		r.Put("/splits/{publisherId}", publisher.PutSplits)
	})

	r.Put("/publisher/content/{articleId}/splits", publisher.PutArticleSplits)
	r.Delete("/author/content/{articleId}", publisher.DeleteArticle)
	r.Get("/author/earnings", publisher.Earnings)
}
