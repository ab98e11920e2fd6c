package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/rzbill/shardq/internal/runtime"
	"github.com/rzbill/shardq/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general  *GeneralController
	messages *MessagesController
}

// NewControllerRegistry creates a new controller registry backed by rt.
func NewControllerRegistry(rt *runtime.Runtime, logger log.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:  NewGeneralController(rt, logger),
		messages: NewMessagesController(rt, logger),
	}
}

// RegisterAllRoutes registers every /v1 endpoint on r.
func (c *ControllerRegistry) RegisterAllRoutes(r chi.Router) {
	c.general.RegisterRoutes(r)
	c.messages.RegisterRoutes(r)
}
