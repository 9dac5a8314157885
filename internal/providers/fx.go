package providers

import (
	"github.com/smallbiznis/subtrack/internal/notify"
	"github.com/smallbiznis/subtrack/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	notify.Module,
	pdf.Module,
)
