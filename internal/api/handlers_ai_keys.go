package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chartpilot/internal/auth"
)

// storeKeyRequest carries a provider API key to store
type storeKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Label    string `json:"label"`
}

func (s *Server) handleListAIKeys(c *gin.Context) {
	userID := auth.GetUserID(c)

	keys, err := s.aiKeys.ListKeys(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

func (s *Server) handleStoreAIKey(c *gin.Context) {
	userID := auth.GetUserID(c)

	var req storeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Provider == "" || req.APIKey == "" {
		badRequest(c, "provider and api_key are required")
		return
	}

	key, err := s.aiKeys.StoreKey(c.Request.Context(), userID, req.Provider, req.APIKey, req.Label)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusCreated, key)
}

func (s *Server) handleDeleteAIKey(c *gin.Context) {
	userID := auth.GetUserID(c)

	if err := s.aiKeys.DeleteKey(c.Request.Context(), userID, c.Param("provider")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "key removed"})
}
