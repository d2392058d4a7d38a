package user

import (
	"github.com/smallbiznis/ticketing/internal/auth/password"
	"github.com/smallbiznis/ticketing/internal/user/repository"
	"github.com/smallbiznis/ticketing/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(password.NewHasher),
	fx.Provide(service.New),
)
