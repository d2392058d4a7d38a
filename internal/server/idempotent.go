package server

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ticketing/internal/idempotency"
)

const headerIdempotentReplayed = "Idempotent-Replayed"

// respondIdempotent runs fn at most once per Idempotency-Key within scope.
// The stored status and bytes are written back unchanged on replay.
func (s *Server) respondIdempotent(c *gin.Context, scope string, fn func(ctx context.Context) (int, any, error)) {
	key := strings.TrimSpace(c.GetHeader(idempotency.HeaderKey))

	res, replayed, err := s.idempotency.Execute(c.Request.Context(), scope, key, func(ctx context.Context) (idempotency.Result, error) {
		status, resp, err := fn(ctx)
		if err != nil {
			return idempotency.Result{}, err
		}
		body, err := json.Marshal(resp)
		if err != nil {
			return idempotency.Result{}, err
		}
		return idempotency.Result{Status: status, Body: body}, nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if replayed {
		c.Header(headerIdempotentReplayed, "true")
	}
	c.Data(res.Status, "application/json; charset=utf-8", res.Body)
}
