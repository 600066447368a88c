package api

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/utils"
	"github.com/solacehq/solace-server/service/appointment"
	"github.com/solacehq/solace-server/service/availability"
	"github.com/solacehq/solace-server/service/dashboard"
	"github.com/solacehq/solace-server/service/notifications"
	"github.com/solacehq/solace-server/service/payment"
	"github.com/solacehq/solace-server/service/resource"
	"github.com/solacehq/solace-server/service/slots"
	"github.com/solacehq/solace-server/service/transactions"
	"github.com/solacehq/solace-server/service/user"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	// Booking and withdrawals serialize per counsellor through the same lock set
	locks := utils.NewKeyedMutex()

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	availabilityHandler := availability.NewAvailabilityHandler(s.db)
	availabilityHandler.RegisterRoutes(subrouter)

	slotHandler := slots.NewSlotHandler(s.db)
	slotHandler.RegisterRoutes(subrouter)

	appointmentHandler := appointment.NewAppointmentHandler(s.db, locks)
	appointmentHandler.RegisterRoutes(subrouter)

	paymentHandler := payment.NewPaymentHandler(s.db, locks)
	paymentHandler.RegisterRoutes(subrouter)

	transactionHandler := transactions.NewTransactionHandler(s.db)
	transactionHandler.RegisterRoutes(subrouter)

	dashboardHandler := dashboard.NewDashboardHandler(s.db)
	dashboardHandler.RegisterRoutes(subrouter)

	resourceHandler := resource.NewResourceHandler(s.db)
	resourceHandler.RegisterRoutes(subrouter)

	notificationHandler := notifications.NewNotificationHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors(handlers.LoggingHandler(os.Stdout, router)))
}
