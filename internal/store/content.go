package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreatePost inserts a new post.
func (s *SQLStore) CreatePost(ctx context.Context, post *Post) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO posts (id, title, slug, body, category, created_at, updated_at)
		VALUES (:id, :title, :slug, :body, :category, :created_at, :updated_at)`,
		post)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// GetPost fetches a post by id.
func (s *SQLStore) GetPost(ctx context.Context, id string) (*Post, error) {
	var post Post
	err := s.db.GetContext(ctx, &post, `SELECT * FROM posts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &post, nil
}

// ListPosts returns all posts, newest first.
func (s *SQLStore) ListPosts(ctx context.Context) ([]*Post, error) {
	var posts []*Post
	err := s.db.SelectContext(ctx, &posts, `SELECT * FROM posts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// UpdatePost updates a post's mutable fields.
func (s *SQLStore) UpdatePost(ctx context.Context, post *Post) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE posts SET title = :title, slug = :slug, body = :body,
			category = :category, updated_at = :updated_at
		WHERE id = :id`,
		post)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update post: %w", err)
	}
	return requireRow(res)
}

// DeletePost removes a post.
func (s *SQLStore) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return requireRow(res)
}

// CreateCategory inserts a new category.
func (s *SQLStore) CreateCategory(ctx context.Context, cat *Category) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO categories (id, name, slug, created_at)
		VALUES (:id, :name, :slug, :created_at)`,
		cat)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (s *SQLStore) ListCategories(ctx context.Context) ([]*Category, error) {
	var cats []*Category
	err := s.db.SelectContext(ctx, &cats, `SELECT * FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// DeleteCategory removes a category.
func (s *SQLStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireRow(res)
}
