package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collabdocs/backend/internal/collab"
	"collabdocs/backend/internal/store"
	"collabdocs/backend/internal/ws"
)

type commentResp struct {
	ID          uint64 `json:"id"`
	DocumentID  string `json:"document_id"`
	UserID      uint64 `json:"user_id"`
	Content     string `json:"content"`
	RangeIndex  int64  `json:"range_index"`
	RangeLength int64  `json:"range_length"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toCommentResp(c *store.Comment) commentResp {
	return commentResp{
		ID:          c.ID,
		DocumentID:  c.DocumentID,
		UserID:      c.UserID,
		Content:     c.Content,
		RangeIndex:  c.RangeIndex,
		RangeLength: c.RangeLength,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Documents) ListComments(c *gin.Context) {
	docID := c.Param("documentID")
	if _, ok := h.requirePermission(c, docID, collab.PermissionRead); !ok {
		return
	}

	comments, err := h.comments.ListForDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list comments failed"})
		return
	}

	resp := make([]commentResp, 0, len(comments))
	for i := range comments {
		resp = append(resp, toCommentResp(&comments[i]))
	}
	c.JSON(http.StatusOK, resp)
}

type createCommentReq struct {
	Content     string `json:"content" binding:"required"`
	RangeIndex  int64  `json:"range_index"`
	RangeLength int64  `json:"range_length"`
}

func (h *Documents) CreateComment(c *gin.Context) {
	docID := c.Param("documentID")
	userID, ok := h.requirePermission(c, docID, collab.PermissionRead)
	if !ok {
		return
	}

	var req createCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	comment := &store.Comment{
		DocumentID:  docID,
		UserID:      userID,
		Content:     req.Content,
		RangeIndex:  req.RangeIndex,
		RangeLength: req.RangeLength,
	}
	if err := h.comments.Create(c.Request.Context(), comment); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create comment failed"})
		return
	}

	h.notifyComment(c, docID, "add", comment.ID, userID)
	c.JSON(http.StatusCreated, toCommentResp(comment))
}

type updateCommentReq struct {
	Content string `json:"content" binding:"required"`
}

// loadComment 取评论并校验操作者身份：评论作者或文档拥有者
func (h *Documents) loadComment(c *gin.Context) (*store.Comment, uint64, bool) {
	commentID, err := strconv.ParseUint(c.Param("commentID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return nil, 0, false
	}

	comment, err := h.comments.Get(c.Request.Context(), commentID)
	if err != nil {
		if errors.Is(err, store.ErrCommentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
			return nil, 0, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get comment failed"})
		return nil, 0, false
	}

	userID := c.GetUint64("userId")
	if comment.UserID != userID {
		info, err := h.docs.GetDocumentInfo(c.Request.Context(), comment.DocumentID)
		if err != nil || info.OwnerID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return nil, 0, false
		}
	}
	return comment, userID, true
}

func (h *Documents) UpdateComment(c *gin.Context) {
	comment, userID, ok := h.loadComment(c)
	if !ok {
		return
	}

	var req updateCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.comments.UpdateContent(c.Request.Context(), comment.ID, req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update comment failed"})
		return
	}
	comment.Content = req.Content

	h.notifyComment(c, comment.DocumentID, "update", comment.ID, userID)
	c.JSON(http.StatusOK, toCommentResp(comment))
}

func (h *Documents) DeleteComment(c *gin.Context) {
	comment, userID, ok := h.loadComment(c)
	if !ok {
		return
	}

	if err := h.comments.Delete(c.Request.Context(), comment.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete comment failed"})
		return
	}

	h.notifyComment(c, comment.DocumentID, "delete", comment.ID, userID)
	c.JSON(http.StatusOK, gin.H{"deleted": comment.ID})
}

func (h *Documents) notifyComment(c *gin.Context, docID, action string, commentID, userID uint64) {
	h.hub.BroadcastEvent(c.Request.Context(), docID, ws.CommentNotificationEvent{
		Type:      "comment_notification",
		Action:    action,
		CommentID: commentID,
		UserID:    userID,
		Username:  c.GetString("username"),
	}, "")
}
