package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"parkcore/internal/api"
	"parkcore/internal/auth"
	"parkcore/internal/clock"
	"parkcore/internal/config"
	"parkcore/internal/events"
	"parkcore/internal/repository"
	"parkcore/internal/service"
	"parkcore/internal/timeline"
	"parkcore/internal/waitlist"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}

	bookingRepo := repository.NewBookingRepository(db)
	spotRepo := repository.NewSpotRepository(db)
	operatorRepo := repository.NewOperatorRepository(db)

	var sink events.Sink = events.LogSink{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	payments := service.NewStripeService(cfg.StripeAPIKey)
	sender := service.NewSenderService()
	clk := clock.NewSystem()

	engine := service.NewReservationEngine(service.EngineDeps{
		Repo:         bookingRepo,
		Arena:        timeline.NewArena(),
		Catalog:      spotRepo,
		Queue:        waitlist.New(),
		Payments:     payments,
		Sink:         sink,
		Notifier:     sender,
		Clock:        clk,
		GracePeriod:  cfg.GracePeriod(),
		OfferTimeout: cfg.OfferAcceptTimeout,
	})
	if err := engine.Restore(); err != nil {
		log.Fatalf("Failed to restore engine state: %v", err)
	}

	broker := service.NewTransferBroker(engine, payments, cfg.SwapOfferTTL)
	supervisor := service.NewGraceSupervisor(engine, broker, cfg.SweepInterval, cfg.ReminderLead)
	if err := supervisor.Start(); err != nil {
		log.Fatalf("Failed to start grace supervisor: %v", err)
	}
	defer supervisor.Stop()

	operatorSvc := service.NewOperatorService(bookingRepo, spotRepo, engine)
	operatorAuthSvc := service.NewOperatorAuthService(operatorRepo, cfg.JWTSecret)

	bookingHandler := api.NewBookingHandler(engine, clk)
	transferHandler := api.NewTransferHandler(broker)
	operatorHandler := api.NewOperatorHandler(operatorSvc, supervisor)
	operatorAuthHandler := api.NewOperatorAuthHandler(operatorAuthSvc)
	stripeHandler := api.NewStripeWebhookHandler(cfg.StripeWebhookSecret, bookingRepo)

	r := mux.NewRouter()

	// Public endpoints
	r.HandleFunc("/api/bookings", bookingHandler.CreateBooking).Methods("POST")
	r.HandleFunc("/api/bookings/{id}", bookingHandler.GetBooking).Methods("GET")
	r.HandleFunc("/api/bookings/{id}", bookingHandler.CancelBooking).Methods("DELETE")
	r.HandleFunc("/api/bookings/{id}/check-in", bookingHandler.CheckIn).Methods("POST")
	r.HandleFunc("/api/bookings/{id}/check-out", bookingHandler.CheckOut).Methods("POST")
	r.HandleFunc("/api/bookings/{id}/claim", bookingHandler.ClaimOffer).Methods("POST")
	r.HandleFunc("/api/bookings/{id}/bid", bookingHandler.RaiseBid).Methods("POST")
	r.HandleFunc("/api/bookings/{id}/extend", transferHandler.ExtendHold).Methods("POST")

	r.HandleFunc("/api/swaps", transferHandler.ProposeSwap).Methods("POST")
	r.HandleFunc("/api/swaps", transferHandler.ListOffers).Methods("GET")
	r.HandleFunc("/api/swaps/{id}", transferHandler.GetOffer).Methods("GET")
	r.HandleFunc("/api/swaps/{id}/accept", transferHandler.AcceptSwap).Methods("POST")
	r.HandleFunc("/api/swaps/{id}", transferHandler.WithdrawSwap).Methods("DELETE")

	r.HandleFunc("/api/operator/login", operatorAuthHandler.Login).Methods("POST")
	r.HandleFunc("/api/stripe/webhook", stripeHandler.HandleWebhook).Methods("POST")

	// Operator endpoints (protected)
	operator := r.PathPrefix("/operator").Subrouter()
	operator.Use(auth.OperatorMiddleware(cfg.JWTSecret))
	operator.HandleFunc("/bookings", operatorHandler.ListBookings).Methods("GET")
	operator.HandleFunc("/bookings/{id}", operatorHandler.CancelBooking).Methods("DELETE")
	operator.HandleFunc("/spots", operatorHandler.ListSpots).Methods("GET")
	operator.HandleFunc("/spots", operatorHandler.CreateSpot).Methods("POST")
	operator.HandleFunc("/spots/{id}", operatorHandler.UpdateSpot).Methods("PUT")
	operator.HandleFunc("/sweep", operatorHandler.TriggerSweep).Methods("POST")
	operator.HandleFunc("/waitlist/depth", operatorHandler.WaitlistDepth).Methods("GET")
	operator.HandleFunc("/operators", operatorAuthHandler.CreateOperator).Methods("POST")

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Printf("Server running on port %s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handlers.LoggingHandler(os.Stdout, cors(r))))
}
