package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setCommandRequest struct {
	Reply string `json:"reply"`
}

func (s *Server) ListCommands(c *gin.Context) {
	resp, err := s.commands.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCommand(c *gin.Context) {
	resp, err := s.commands.Get(c.Request.Context(), c.Param("cmd"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetCommand(c *gin.Context) {
	var req setCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commands.Set(c.Request.Context(), c.Param("cmd"), req.Reply)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCommand(c *gin.Context) {
	if err := s.commands.Delete(c.Request.Context(), c.Param("cmd")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
