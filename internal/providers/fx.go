package providers

import (
	"github.com/smallbiznis/ticketing/internal/providers/email"
	"github.com/smallbiznis/ticketing/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
