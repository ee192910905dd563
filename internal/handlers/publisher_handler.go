package handlers

import (
	"context"
	"net/http"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/services"
)

type SplitAdmin interface {
	ListRules(ctx context.Context, actor services.Actor, publisherID int64) (*services.SplitRulesResult, error)
	ReplaceRules(ctx context.Context, actor services.Actor, publisherID int64, rules []models.SplitRule) (*services.SplitRulesResult, error)
	SetArticleSplits(ctx context.Context, actor services.Actor, articleID int64, splits money.Rules) (int64, error)
}

type ArticleRemover interface {
	Delete(ctx context.Context, userID, articleID int64) (services.DeleteOutcome, error)
}

type EarningsReporter interface {
	SummaryForUser(ctx context.Context, userID int64) (*models.EarningsSummary, error)
}

// PublisherHandler serves the admin, publisher and author dashboards.
type PublisherHandler struct {
	splits   SplitAdmin
	articles ArticleRemover
	earnings EarningsReporter
}

func NewPublisherHandler(splits SplitAdmin, articles ArticleRemover, earnings EarningsReporter) *PublisherHandler {
	return &PublisherHandler{splits: splits, articles: articles, earnings: earnings}
}

// GetSplits lists a publisher's split rules.
// @Summary List split rules
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param publisherId path int true "Publisher ID"
// @Success 200 {object} services.SplitRulesResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/splits/{publisherId} [get]
func (h *PublisherHandler) GetSplits(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	pubID, ok := pathID(w, r, "publisherId")
	if !ok {
		return
	}

	res, err := h.splits.ListRules(r.Context(), id.Actor(), pubID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type replaceSplitsRequest struct {
	Rules []models.SplitRule `json:"rules" validate:"dive"`
}

// PutSplits replaces a publisher's split rules.
// @Summary Replace split rules
// @Description Replace every split rule of a publisher; totals above 100% warn or fail per policy
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param publisherId path int true "Publisher ID"
// @Param request body handlers.replaceSplitsRequest true "Rules"
// @Success 200 {object} services.SplitRulesResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/splits/{publisherId} [put]
func (h *PublisherHandler) PutSplits(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	pubID, ok := pathID(w, r, "publisherId")
	if !ok {
		return
	}
	var req replaceSplitsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.splits.ReplaceRules(r.Context(), id.Actor(), pubID, req.Rules)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type articleSplitsRequest struct {
	Splits money.Rules `json:"splits" validate:"required"`
}

// PutArticleSplits sets the custom split of one article.
// @Summary Set article split
// @Tags Publisher
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param articleId path int true "Article ID"
// @Param request body handlers.articleSplitsRequest true "Split in basis points by role"
// @Success 200 {object} object{ok=bool,article_id=int64,total_bps=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /publisher/content/{articleId}/splits [put]
func (h *PublisherHandler) PutArticleSplits(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	articleID, ok := pathID(w, r, "articleId")
	if !ok {
		return
	}
	var req articleSplitsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	total, err := h.splits.SetArticleSplits(r.Context(), id.Actor(), articleID, req.Splits)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"article_id": articleID,
		"total_bps":  total,
	})
}

// DeleteArticle removes an author's article, or archives it once it has sales.
// @Summary Delete article
// @Description Delete an unsold article or archive one that has purchases
// @Tags Author
// @Produce json
// @Security BearerAuth
// @Param articleId path int true "Article ID"
// @Success 200 {object} object{ok=bool,article_id=int64,result=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /author/content/{articleId} [delete]
func (h *PublisherHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	articleID, ok := pathID(w, r, "articleId")
	if !ok {
		return
	}

	outcome, err := h.articles.Delete(r.Context(), id.UserID, articleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"article_id": articleID,
		"result":     outcome,
	})
}

// Earnings summarizes the calling author's earnings.
// @Summary Author earnings
// @Tags Author
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.EarningsSummary
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /author/earnings [get]
func (h *PublisherHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	summary, err := h.earnings.SummaryForUser(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
