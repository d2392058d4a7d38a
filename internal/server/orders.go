package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	"github.com/smallbiznis/ticketing/pkg/db/pagination"
)

type createOrderRequest struct {
	BillingType string                        `json:"billing_type"`
	Items       []orderdomain.CreateOrderItem `json:"items"`
}

type createChargeRequest struct {
	BillingType string `json:"billing_type"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scope := fmt.Sprintf("order.create:%s", principal.UserID)
	s.respondIdempotent(c, scope, func(ctx context.Context) (int, any, error) {
		order, err := s.orderSvc.Create(ctx, orderdomain.CreateOrderRequest{
			UserID:      principal.UserID,
			BillingType: strings.ToUpper(strings.TrimSpace(req.BillingType)),
			Items:       req.Items,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, gin.H{"data": order}, nil
	})
}

func (s *Server) ListOrders(c *gin.Context) {
	principal, _ := principalFromContext(c)

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.ListByUser(c.Request.Context(), principal.UserID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrder(c *gin.Context) {
	principal, _ := principalFromContext(c)
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), principal.UserID, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) CreateCharge(c *gin.Context) {
	principal, _ := principalFromContext(c)
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req createChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.CreateCharge(c.Request.Context(), principal.UserID, orderID, strings.ToUpper(strings.TrimSpace(req.BillingType)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) GetCourtesy(c *gin.Context) {
	courtesy, err := s.orderSvc.GetCourtesy(c.Request.Context(), strings.TrimSpace(c.Param("token")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": courtesy})
}
