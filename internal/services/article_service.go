package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/paypr/backend/internal/repository"
)

// ArticleStore removes an article in one transaction: ownership check, purchase
// count and the delete or archive all run under a row lock.
type ArticleStore interface {
	RemoveArticle(ctx context.Context, articleID, authorID int64) (archived bool, err error)
}

type AuthorDirectory interface {
	AuthorIDForUser(ctx context.Context, userID int64) (int64, error)
}

// DeleteOutcome tells the caller whether the article row survived.
type DeleteOutcome string

const (
	ArticleWasDeleted  DeleteOutcome = "deleted"
	ArticleWasArchived DeleteOutcome = "archived"
)

type ArticleService struct {
	articles ArticleStore
	authors  AuthorDirectory
}

func NewArticleService(articles ArticleStore, authors AuthorDirectory) *ArticleService {
	return &ArticleService{articles: articles, authors: authors}
}

// Delete removes an article the caller authored. Articles that were ever
// purchased are archived instead so their ledger rows keep a valid reference.
func (s *ArticleService) Delete(ctx context.Context, userID, articleID int64) (DeleteOutcome, error) {
	authorID, err := s.authors.AuthorIDForUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", newError(KindNotFound, "author profile not found", nil)
	}
	if err != nil {
		return "", fmt.Errorf("resolve author profile: %w", err)
	}

	archived, err := s.articles.RemoveArticle(ctx, articleID, authorID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", newError(KindNotFound, "article not found or not authorized", nil)
	}
	if err != nil {
		return "", fmt.Errorf("remove article %d: %w", articleID, err)
	}
	if archived {
		return ArticleWasArchived, nil
	}
	return ArticleWasDeleted, nil
}
