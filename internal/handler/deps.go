package handler

import (
	"vcall/internal/app/presence"
	"vcall/internal/app/session"
	"vcall/internal/configs"
)

type AppDeps struct {
	Manager  *session.Manager
	Presence *presence.Client
	Config   *configs.AppConfig
}
