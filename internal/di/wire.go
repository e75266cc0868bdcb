//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"watchtower/internal/app"
	"watchtower/internal/config"
)

// InitializeApp builds the full application graph from configuration.
func InitializeApp(cfg *config.Config) (*app.App, error) {
	wire.Build(AppSet)
	return nil, nil
}
