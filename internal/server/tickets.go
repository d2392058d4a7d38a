package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkindomain "github.com/smallbiznis/ticketing/internal/checkin/domain"
	fulfillmentdomain "github.com/smallbiznis/ticketing/internal/fulfillment/domain"
)

type assignTicketRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) AssignTicket(c *gin.Context) {
	principal, _ := principalFromContext(c)
	ticketID, ok := pathID(c, "ref")
	if !ok {
		return
	}

	var req assignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ticket, err := s.fulfillment.AssignHolder(c.Request.Context(), fulfillmentdomain.AssignHolderRequest{
		UserID:   principal.UserID,
		TicketID: ticketID,
		Name:     req.Name,
		Email:    req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

func (s *Server) RedeemTicket(c *gin.Context) {
	principal, _ := principalFromContext(c)

	ticket, err := s.checkinSvc.Redeem(c.Request.Context(), checkindomain.RedeemRequest{
		QRCode:  strings.TrimSpace(c.Param("ref")),
		StaffID: principal.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

func (s *Server) CheckIn(c *gin.Context) {
	res, err := s.checkinSvc.CheckIn(c.Request.Context(), strings.TrimSpace(c.Param("token")), c.ClientIP())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}
