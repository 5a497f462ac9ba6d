package provider

import (
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/provider/mock"
	"go.uber.org/fx"
)

var Module = fx.Module("provider",
	fx.Provide(NewMockAdapter),
	fx.Provide(NewDefaultRegistry),
)

func NewMockAdapter(cfg config.Config) *mock.Adapter {
	mode, ok := mock.ParseMode(cfg.MockProviderMode)
	if !ok {
		mode = mock.ModeSuccess
	}
	return mock.New(mode, cfg.MockProviderLatency)
}

func NewDefaultRegistry(m *mock.Adapter) *Registry {
	return NewRegistry(m)
}
