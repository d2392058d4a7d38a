package emaillog

import (
	"github.com/smallbiznis/ticketing/internal/emaillog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("emaillog.repository",
	fx.Provide(repository.Provide),
)
