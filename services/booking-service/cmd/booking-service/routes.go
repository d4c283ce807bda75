package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/payments"
)

type apiDeps struct {
	accounts         handlers.AccountStore
	tutors           handlers.TutorStore
	engine           *availability.Engine
	service          *booking.Service
	payments         payments.Provider
	jwtSecret        string
	tokenTTL         time.Duration
	webhookSecret    string
	webhookTolerance time.Duration
}

func registerRoutes(mux *http.ServeMux, d apiDeps, logger *slog.Logger) {
	authHandler := handlers.NewAuthHandler(d.accounts, d.jwtSecret, d.tokenTTL, logger)
	tutorHandler := handlers.NewTutorHandler(d.tutors, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(d.engine, logger)
	bookingHandler := handlers.NewBookingHandler(d.service, d.payments, logger)
	webhookHandler := handlers.NewPaymentWebhookHandler(d.service, d.webhookSecret, d.webhookTolerance, logger)

	mux.HandleFunc("/api/v1/auth/register", httpx.Methods(authHandler.Register, http.MethodPost))
	mux.HandleFunc("/api/v1/auth/login", httpx.Methods(authHandler.Login, http.MethodPost))

	mux.HandleFunc("/api/v1/tutors", httpx.Methods(tutorHandler.List, http.MethodGet))
	mux.HandleFunc("/api/v1/tutors/profile", tutorHandler.Profile(d.jwtSecret))

	mux.HandleFunc("/api/v1/availability/check", httpx.Methods(availabilityHandler.Check, http.MethodPost))
	mux.HandleFunc("/api/v1/availability/next", httpx.Methods(availabilityHandler.Next, http.MethodGet))
	mux.HandleFunc("/api/v1/availability/slots", httpx.Methods(availabilityHandler.Slots, http.MethodGet))

	mux.HandleFunc("/api/v1/bookings", bookingHandler.Bookings(d.jwtSecret))
	mux.HandleFunc("/api/v1/bookings/cancel", httpx.Methods(auth.RequireAuth(d.jwtSecret)(bookingHandler.Cancel), http.MethodPost))

	mux.HandleFunc("/api/v1/payments/webhooks/stripe", httpx.Methods(webhookHandler.Stripe, http.MethodPost))
}
