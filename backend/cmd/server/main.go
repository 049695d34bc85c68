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

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/messnet/messledger/backend/handlers"
	"github.com/messnet/messledger/backend/ledger"
	"github.com/messnet/messledger/backend/logging"
	"github.com/messnet/messledger/backend/middleware"
	mongostore "github.com/messnet/messledger/backend/storage/mongo"
	redisstore "github.com/messnet/messledger/backend/storage/redis"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logging.Setup()

	// MongoDB connection
	mongoURL := getEnv("MONGO_URL", "mongodb://localhost:27017")
	dbName := getEnv("MONGO_DB", "messdb")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "url", mongoURL, "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		slog.Error("MongoDB unreachable", "url", mongoURL, "error", err)
		os.Exit(1)
	}

	// Initialize storage
	store := mongostore.NewStore(client.Database(dbName))

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Redis connection (join throttle state only)
	redisAddr := getEnv("REDIS_URL", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	throttle := redisstore.NewJoinThrottle(rdb)

	// Initialize the ledger core and transport
	messLedger := ledger.New(store, throttle)
	messHandler := handlers.NewMessHandler(messLedger)

	// JWT configuration. Without a secret the API still serves anonymous
	// pollers, but no caller can authenticate as admin and the details
	// projection never includes the join key.
	jwtSecret := os.Getenv("JWT_SECRET")
	jwtIssuer := getEnv("JWT_ISSUER", "messnet")
	if jwtSecret == "" {
		slog.Warn("JWT_SECRET not set; details responses will never include the join key")
	}

	var allowedOrigins []string
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		allowedOrigins = strings.Split(v, ",")
	}

	// Setup router
	r := mux.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(allowedOrigins))

	// API routes
	api := r.PathPrefix("/api/mess").Subrouter()
	if jwtSecret != "" {
		api.Use(middleware.NewAuthMiddleware(jwtSecret, jwtIssuer))
	}

	api.HandleFunc("/details", messHandler.GetDetails).Methods("POST", "OPTIONS")
	api.HandleFunc("/create", messHandler.CreateMess).Methods("POST", "OPTIONS")
	api.HandleFunc("/join", messHandler.JoinMess).Methods("POST", "OPTIONS")
	api.HandleFunc("/expense", messHandler.AddExpenses).Methods("POST", "OPTIONS")
	api.HandleFunc("/deposit", messHandler.AddDeposit).Methods("POST", "OPTIONS")
	api.HandleFunc("/meal", messHandler.UpdateMeal).Methods("POST", "OPTIONS")

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Prometheus scrape endpoint
	r.Handle("/metrics", middleware.MetricsHandler()).Methods("GET")

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Mess Manager API is running!"))
	}).Methods("GET")

	port := getEnv("PORT", "5000")
	slog.Info("Mess ledger server starting", "port", port, "database", dbName)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
