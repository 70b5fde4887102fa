// Package di assembles the gateway's services with google/wire.
package di

import (
	"github.com/Azure/ai-gateway/pkg/api"
	"github.com/Azure/ai-gateway/pkg/chat"
	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/mcpserver"
	"github.com/Azure/ai-gateway/pkg/metrics"
	"github.com/Azure/ai-gateway/pkg/providers"
	"github.com/Azure/ai-gateway/pkg/routing"
	"github.com/Azure/ai-gateway/pkg/storage/bolt"
	"github.com/Azure/ai-gateway/pkg/users"
)

// Container holds every wired component of a running gateway.
type Container struct {
	Config    *config.Config
	Store     *bolt.Store
	Metrics   *metrics.Metrics
	Registry  *providers.Registry
	Providers *providers.Service
	Engine    *routing.Engine
	Loads     *routing.LoadManager
	Users     *users.Service
	Chat      *chat.Service
	API       *api.Server
	MCP       *mcpserver.Server
}
