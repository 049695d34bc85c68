// Copyright (C) 2025 messnet <dev@messnet.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package integration

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/messnet/messledger/backend/handlers"
	"github.com/messnet/messledger/backend/ledger"
	"github.com/messnet/messledger/backend/middleware"
	"github.com/messnet/messledger/backend/storage"
)

// MessIntegration mounts the mess ledger API inside a host application that
// already owns a mux router and its own storage wiring.
type MessIntegration struct {
	ledger    *ledger.Ledger
	handler   *handlers.MessHandler
	jwtSecret string
	jwtIssuer string
}

// Config holds configuration for the mess integration. Limiter may be nil
// to run without join throttling.
type Config struct {
	Store     storage.MessStore
	Limiter   ledger.JoinLimiter
	JWTSecret string
	JWTIssuer string
}

// New creates a mess integration that can be embedded into a host server.
func New(config *Config) *MessIntegration {
	l := ledger.New(config.Store, config.Limiter)
	return &MessIntegration{
		ledger:    l,
		handler:   handlers.NewMessHandler(l),
		jwtSecret: config.JWTSecret,
		jwtIssuer: config.JWTIssuer,
	}
}

// RegisterRoutes adds the mess routes to an existing router.
// If authMiddleware is nil, the built-in JWT validation is used (and skipped
// entirely when no secret is configured).
func (m *MessIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/mess").Subrouter()

	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else if m.jwtSecret != "" {
		api.Use(middleware.NewAuthMiddleware(m.jwtSecret, m.jwtIssuer))
	}

	api.HandleFunc("/details", m.handler.GetDetails).Methods("POST", "OPTIONS")
	api.HandleFunc("/create", m.handler.CreateMess).Methods("POST", "OPTIONS")
	api.HandleFunc("/join", m.handler.JoinMess).Methods("POST", "OPTIONS")
	api.HandleFunc("/expense", m.handler.AddExpenses).Methods("POST", "OPTIONS")
	api.HandleFunc("/deposit", m.handler.AddDeposit).Methods("POST", "OPTIONS")
	api.HandleFunc("/meal", m.handler.UpdateMeal).Methods("POST", "OPTIONS")
}
