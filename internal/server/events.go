package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/ticketing/internal/event/domain"
)

func (s *Server) ListEvents(c *gin.Context) {
	events, err := s.eventSvc.ListUpcoming(c.Request.Context(), s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) GetEvent(c *gin.Context) {
	event, err := s.eventSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("ref")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": event})
}

func (s *Server) CreateEvent(c *gin.Context) {
	var req eventdomain.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.eventSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}
