package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/ticketing/internal/user/domain"
)

const scopeUserRegister = "user.register"

type registerUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	TaxID    string `json:"tax_id"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	s.respondIdempotent(c, scopeUserRegister, func(ctx context.Context) (int, any, error) {
		user, err := s.userSvc.Register(ctx, userdomain.RegisterRequest{
			FullName: strings.TrimSpace(req.FullName),
			Email:    strings.TrimSpace(req.Email),
			TaxID:    strings.TrimSpace(req.TaxID),
			Phone:    strings.TrimSpace(req.Phone),
			Password: req.Password,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, gin.H{"data": user}, nil
	})
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	token, err := s.authsvc.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": token})
}

func (s *Server) Me(c *gin.Context) {
	principal, _ := principalFromContext(c)
	user, err := s.userSvc.Get(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}
