package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collabdocs/backend/internal/collab"
	"collabdocs/backend/internal/store"
	"collabdocs/backend/internal/ws"
	"collabdocs/logger"
)

// Documents 文档 CRUD + 分享 + 版本历史。
// 保存/评论成功后通过 Hub 把 doc_saved / comment_notification
// 推给文档广播组的所有成员（包括其他标签页/设备）。
type Documents struct {
	docs       *store.DocumentStore
	users      *store.UserStore
	versions   *store.VersionStore
	comments   *store.CommentStore
	resolver   *collab.Resolver
	hub        *ws.Hub
	dispatcher *collab.KafkaDispatcher
}

func NewDocuments(
	docs *store.DocumentStore,
	users *store.UserStore,
	versions *store.VersionStore,
	comments *store.CommentStore,
	resolver *collab.Resolver,
	hub *ws.Hub,
	dispatcher *collab.KafkaDispatcher,
) *Documents {
	return &Documents{
		docs:       docs,
		users:      users,
		versions:   versions,
		comments:   comments,
		resolver:   resolver,
		hub:        hub,
		dispatcher: dispatcher,
	}
}

type documentResp struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	OwnerID   uint64          `json:"owner_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	IsOwner   bool            `json:"is_owner"`
}

func toDocumentResp(doc *store.Document, userID uint64, withContent bool) documentResp {
	resp := documentResp{
		ID:        doc.ID,
		Title:     doc.Title,
		OwnerID:   doc.OwnerID,
		CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: doc.UpdatedAt.UTC().Format(time.RFC3339),
		IsOwner:   doc.OwnerID == userID,
	}
	if withContent {
		resp.Content = doc.Content
	}
	return resp
}

// requirePermission 权限闸门；不满足时已写好响应，ok=false
func (h *Documents) requirePermission(c *gin.Context, docID string, min collab.Permission) (userID uint64, ok bool) {
	userID = c.GetUint64("userId")
	perm, err := h.resolver.Resolve(c.Request.Context(), docID, userID)
	if err != nil {
		if errors.Is(err, collab.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return userID, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "permission check failed"})
		return userID, false
	}
	if perm < min {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return userID, false
	}
	return userID, true
}

// requireOwner 拥有者专属操作（删除、分享）
func (h *Documents) requireOwner(c *gin.Context, docID string) (userID uint64, ok bool) {
	userID = c.GetUint64("userId")
	info, err := h.docs.GetDocumentInfo(c.Request.Context(), docID)
	if err != nil {
		if errors.Is(err, collab.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return userID, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "document lookup failed"})
		return userID, false
	}
	if info.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner only"})
		return userID, false
	}
	return userID, true
}

type createDocumentReq struct {
	Title   string          `json:"title" binding:"required"`
	Content json.RawMessage `json:"content"`
}

func (h *Documents) Create(c *gin.Context) {
	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID := c.GetUint64("userId")
	doc, err := h.docs.Create(c.Request.Context(), userID, req.Title, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create document failed"})
		return
	}
	c.JSON(http.StatusCreated, toDocumentResp(doc, userID, true))
}

func (h *Documents) List(c *gin.Context) {
	userID := c.GetUint64("userId")
	docs, err := h.docs.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list documents failed"})
		return
	}

	resp := make([]documentResp, 0, len(docs))
	for i := range docs {
		resp = append(resp, toDocumentResp(&docs[i], userID, false))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Documents) Get(c *gin.Context) {
	docID := c.Param("documentID")
	userID, ok := h.requirePermission(c, docID, collab.PermissionRead)
	if !ok {
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get document failed"})
		return
	}
	c.JSON(http.StatusOK, toDocumentResp(doc, userID, true))
}

type updateDocumentReq struct {
	Title   *string         `json:"title"`
	Content json.RawMessage `json:"content"`
}

func (h *Documents) Update(c *gin.Context) {
	docID := c.Param("documentID")
	userID, ok := h.requirePermission(c, docID, collab.PermissionWrite)
	if !ok {
		return
	}

	var req updateDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	doc, err := h.docs.Update(c.Request.Context(), docID, req.Title, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update document failed"})
		return
	}

	// 内容保存成功：追加版本快照，并向广播组推 doc_saved
	if req.Content != nil {
		if err := h.versions.Append(c.Request.Context(), docID, doc.Title, doc.Content); err != nil {
			logger.Errorf("append version error (doc=%s): %v", docID, err)
		}
		h.hub.BroadcastEvent(c.Request.Context(), docID, ws.NewDocSavedEvent(doc.UpdatedAt), "")
		if h.dispatcher != nil {
			h.dispatcher.TryEnqueue(collab.DocEvent{
				EventType:  collab.EventDocSaved,
				DocID:      docID,
				AuthorID:   userID,
				OccurredAt: time.Now(),
			})
		}
	}

	c.JSON(http.StatusOK, toDocumentResp(doc, userID, true))
}

func (h *Documents) Delete(c *gin.Context) {
	docID := c.Param("documentID")
	if _, ok := h.requireOwner(c, docID); !ok {
		return
	}

	if err := h.docs.Delete(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete document failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": docID})
}

type shareReq struct {
	Username   string `json:"username" binding:"required"`
	Permission string `json:"permission"`
}

func (h *Documents) Share(c *gin.Context) {
	docID := c.Param("documentID")
	ownerID, ok := h.requireOwner(c, docID)
	if !ok {
		return
	}

	var req shareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	perm := collab.ParsePermission(req.Permission)
	if perm == collab.PermissionNone {
		// 缺省给只读
		perm = collab.PermissionRead
	}

	targetID, err := h.users.GetUserIDByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if targetID == ownerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot share with yourself"})
		return
	}

	if err := h.docs.Share(c.Request.Context(), docID, targetID, perm); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "share failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": docID,
		"user_id":     targetID,
		"username":    req.Username,
		"permission":  perm.String(),
	})
}

func (h *Documents) Unshare(c *gin.Context) {
	docID := c.Param("documentID")
	if _, ok := h.requireOwner(c, docID); !ok {
		return
	}

	targetID, err := h.users.GetUserIDByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}

	if err := h.docs.Unshare(c.Request.Context(), docID, targetID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unshare failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": docID, "user_id": targetID})
}

func (h *Documents) ListCollaborators(c *gin.Context) {
	docID := c.Param("documentID")
	if _, ok := h.requirePermission(c, docID, collab.PermissionRead); !ok {
		return
	}

	grants, err := h.docs.ListCollaborators(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list collaborators failed"})
		return
	}
	c.JSON(http.StatusOK, grants)
}

func (h *Documents) ListVersions(c *gin.Context) {
	docID := c.Param("documentID")
	if _, ok := h.requirePermission(c, docID, collab.PermissionRead); !ok {
		return
	}

	versions, err := h.versions.List(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list versions failed"})
		return
	}
	c.JSON(http.StatusOK, versions)
}

// RestoreVersion 把文档内容回滚到指定快照；
// 回滚本身也是一次保存（追加新版本 + doc_saved 广播）
func (h *Documents) RestoreVersion(c *gin.Context) {
	docID := c.Param("documentID")
	userID, ok := h.requirePermission(c, docID, collab.PermissionWrite)
	if !ok {
		return
	}

	versionID, err := strconv.ParseUint(c.Param("versionID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version id"})
		return
	}

	version, err := h.versions.Get(c.Request.Context(), docID, versionID)
	if err != nil {
		if errors.Is(err, store.ErrVersionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get version failed"})
		return
	}

	doc, err := h.docs.Update(c.Request.Context(), docID, nil, version.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restore failed"})
		return
	}
	if err := h.versions.Append(c.Request.Context(), docID, doc.Title, doc.Content); err != nil {
		logger.Errorf("append version error (doc=%s): %v", docID, err)
	}
	h.hub.BroadcastEvent(c.Request.Context(), docID, ws.NewDocSavedEvent(doc.UpdatedAt), "")

	c.JSON(http.StatusOK, toDocumentResp(doc, userID, true))
}
