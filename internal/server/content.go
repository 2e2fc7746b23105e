package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kabhishek18/apiguard/internal/store"
)

// contentHandlers serves the guarded blog content API.
type contentHandlers struct {
	content store.ContentStore
}

type postRequest struct {
	Title    string `json:"title" binding:"required"`
	Slug     string `json:"slug" binding:"required"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

func (h *contentHandlers) listPosts(c *gin.Context) {
	posts, err := h.content.ListPosts(c.Request.Context())
	if err != nil {
		writeInternalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *contentHandlers) getPost(c *gin.Context) {
	post, err := h.content.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "post not found", nil)
			return
		}
		writeInternalError(c)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *contentHandlers) createPost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	now := time.Now().UTC()
	post := &store.Post{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Slug:      req.Slug,
		Body:      req.Body,
		Category:  req.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.content.CreatePost(c.Request.Context(), post); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(c, http.StatusConflict, CodeConflict, "post slug already exists", nil)
			return
		}
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusCreated, post)
}

func (h *contentHandlers) updatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	post := &store.Post{
		ID:        c.Param("id"),
		Title:     req.Title,
		Slug:      req.Slug,
		Body:      req.Body,
		Category:  req.Category,
		UpdatedAt: time.Now().UTC(),
	}

	if err := h.content.UpdatePost(c.Request.Context(), post); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "post not found", nil)
			return
		}
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusOK, post)
}

func (h *contentHandlers) deletePost(c *gin.Context) {
	if err := h.content.DeletePost(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "post not found", nil)
			return
		}
		writeInternalError(c)
		return
	}
	c.Status(http.StatusNoContent)
}

type categoryRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

func (h *contentHandlers) listCategories(c *gin.Context) {
	categories, err := h.content.ListCategories(c.Request.Context())
	if err != nil {
		writeInternalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *contentHandlers) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	cat := &store.Category{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Slug:      req.Slug,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.content.CreateCategory(c.Request.Context(), cat); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(c, http.StatusConflict, CodeConflict, "category slug already exists", nil)
			return
		}
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusCreated, cat)
}

func (h *contentHandlers) deleteCategory(c *gin.Context) {
	if err := h.content.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "category not found", nil)
			return
		}
		writeInternalError(c)
		return
	}
	c.Status(http.StatusNoContent)
}
