package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/freight-dispatch/internal/assign"
	"github.com/example/freight-dispatch/internal/billing"
	"github.com/example/freight-dispatch/internal/config"
	"github.com/example/freight-dispatch/internal/dispatch"
	"github.com/example/freight-dispatch/internal/eta"
	"github.com/example/freight-dispatch/internal/geo"
	"github.com/example/freight-dispatch/internal/ingest"
	"github.com/example/freight-dispatch/internal/models"
	"github.com/example/freight-dispatch/internal/observability"
	"github.com/example/freight-dispatch/internal/scorecard"
	"github.com/example/freight-dispatch/internal/storage"
	"github.com/example/freight-dispatch/internal/tracker"
)

type Server struct {
	Fleet   geo.Fleet
	Tracker *tracker.Engine
	Store   storage.LoadStore
	ETA     *eta.Estimator
	Kafka   *ingest.KafkaProducer
	WSReg   *dispatch.WSRegistry
	Assign  *assign.Service
	Billing *billing.StripeClient

	DefaultRadiusMiles float64

	logger  *slog.Logger
	mux     *mux.Router
	lastPos sync.Map // vehicle id -> models.Coord
}

// NewServer wires the API process from config with in-memory fallbacks, so
// a bare binary still runs without Redis, Kafka, or Postgres.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var fleet geo.Fleet
	if cfg.RedisAddr != "" {
		fleet = geo.NewRedisFleet(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisFleetKey)
	} else {
		fleet = geo.NewIndex()
	}

	var store storage.LoadStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Error("postgres unavailable, using memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	estimator := &eta.Estimator{Cache: eta.NewCache(cfg.ETACacheTTL), DefaultSpeedMPH: cfg.DefaultSpeedMPH}
	if cfg.OSRMEndpoint != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	var bc *billing.StripeClient
	if cfg.StripeAPIKey != "" {
		bc = billing.NewStripeClient(cfg.StripeAPIKey)
	}

	s := &Server{
		Fleet:              fleet,
		Tracker:            tracker.New(logger),
		Store:              store,
		ETA:                estimator,
		Kafka:              kp,
		WSReg:              dispatch.NewWSRegistry(),
		Billing:            bc,
		DefaultRadiusMiles: cfg.DefaultRadiusMiles,
		logger:             logger,
		mux:                mux.NewRouter(),
	}
	s.Assign = &assign.Service{Fleet: fleet, ETA: estimator, Store: store, TopN: cfg.SuggestTopN}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/vehicle/positions", s.handlePosition).Methods("POST")

	s.mux.HandleFunc("/api/v1/geofence/check", s.handleGeofenceCheck).Methods("POST")

	s.mux.HandleFunc("/api/v1/facilities", s.handleCreateFacility).Methods("POST")
	s.mux.HandleFunc("/api/v1/facilities/{id}", s.handleGetFacility).Methods("GET")
	s.mux.HandleFunc("/api/v1/facilities/{id}", s.handleUpdateFacility).Methods("PUT")

	s.mux.HandleFunc("/api/v1/loads", s.handleCreateLoad).Methods("POST")
	s.mux.HandleFunc("/api/v1/loads/{id}", s.handleGetLoad).Methods("GET")
	s.mux.HandleFunc("/api/v1/loads/{id}/cancel", s.handleCancelLoad).Methods("POST")
	s.mux.HandleFunc("/api/v1/loads/{id}/timestamps", s.handleCorrectTimestamps).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/loads/{id}/eta", s.handleRefreshETA).Methods("POST")
	s.mux.HandleFunc("/api/v1/loads/{id}/suggestions", s.handleSuggestions).Methods("GET")
	s.mux.HandleFunc("/api/v1/loads/{id}/assign", s.handleAssign).Methods("POST")

	s.mux.HandleFunc("/api/v1/loads/{id}/billing/hold", s.handleBillingHold).Methods("POST")
	s.mux.HandleFunc("/api/v1/loads/{id}/billing/capture", s.handleBillingCapture).Methods("POST")
	s.mux.HandleFunc("/api/v1/loads/{id}/billing/release", s.handleBillingRelease).Methods("POST")

	s.mux.HandleFunc("/api/v1/scorecards", s.handleScorecards).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/{id}/performance", s.handleDriverPerformance).Methods("GET")
	s.mux.HandleFunc("/api/v1/dashboard/summary", s.handleDashboardSummary).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{client_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	var u models.LocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if u.VehicleID == "" && u.LoadID == "" {
		http.Error(w, "vehicle_id or load_id required", http.StatusBadRequest)
		return
	}
	if err := geo.Validate(u.Loc); err != nil {
		observability.InvalidPositionsTotal.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	observability.PositionUpdatesTotal.Inc()

	// fan the sample out to the feed for downstream consumers
	if s.Kafka != nil {
		if err := s.Kafka.PublishPosition(u); err != nil {
			s.logger.Warn("kafka publish failed", "vehicle_id", u.VehicleID, "error", err)
		}
	}
	if err := s.Store.AppendLocation(u); err != nil {
		s.logger.Error("append location failed", "vehicle_id", u.VehicleID, "error", err)
	}
	if u.VehicleID != "" {
		s.Fleet.Upsert(models.Vehicle{ID: u.VehicleID, Loc: u.Loc, SpeedMPH: u.SpeedMPH, Heading: u.Heading})
		if _, seen := s.lastPos.Swap(u.VehicleID, u.Loc); !seen {
			observability.VehiclesTracked.Inc()
		}
	}

	load, err := s.resolveLoad(u)
	if errors.Is(err, storage.ErrNotFound) {
		// a vehicle pinging between loads is normal traffic
		writeJSON(w, http.StatusOK, tracker.Result{Event: tracker.EventNone})
		return
	}
	if err != nil {
		s.logger.Error("resolve load failed", "vehicle_id", u.VehicleID, "error", err)
		http.Error(w, "load lookup failed", http.StatusInternalServerError)
		return
	}
	res, err := s.applyPosition(load, u.Loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) resolveLoad(u models.LocationUpdate) (*models.Load, error) {
	if u.LoadID != "" {
		return s.Store.GetLoad(u.LoadID)
	}
	return s.Store.ActiveLoadForVehicle(u.VehicleID)
}

// applyPosition runs the tracking engine and persists any transition. On a
// version conflict it reloads and re-evaluates: the engine's gates make the
// second pass a no-op for anything the concurrent writer already recorded.
func (s *Server) applyPosition(load *models.Load, pos models.Coord) (tracker.Result, error) {
	const maxAttempts = 3
	for attempt := 0; ; attempt++ {
		res, err := s.Tracker.OnPositionUpdate(load, pos)
		if err != nil {
			return res, err
		}
		if !res.Changed {
			return res, nil
		}
		err = s.Store.UpdateLoad(load)
		if err == nil {
			s.WSReg.Broadcast(dispatch.Event{
				LoadID:       load.ID,
				Reference:    load.ReferenceNumber,
				Kind:         string(res.Event),
				FacilityID:   res.Facility.ID,
				FacilityName: res.Facility.Name,
				Status:       string(load.Status),
				OccurredAt:   res.OccurredAt,
			})
			return res, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) || attempt == maxAttempts-1 {
			return res, err
		}
		fresh, gerr := s.Store.GetLoad(load.ID)
		if gerr != nil {
			return res, gerr
		}
		*load = *fresh
	}
}

func (s *Server) handleGeofenceCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoadID string  `json:"load_id"`
		Lat    float64 `json:"lat"`
		Lng    float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.LoadID == "" {
		http.Error(w, "load_id required", http.StatusBadRequest)
		return
	}
	pos := models.Coord{Lat: req.Lat, Lng: req.Lng}
	if err := geo.Validate(pos); err != nil {
		observability.InvalidPositionsTotal.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	load, err := s.Store.GetLoad(req.LoadID)
	if err != nil {
		http.Error(w, "load not found", http.StatusNotFound)
		return
	}
	res, err := s.applyPosition(load, pos)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateFacility(w http.ResponseWriter, r *http.Request) {
	var f models.Facility
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if f.Name == "" || f.Address == "" || f.ClientID == "" {
		http.Error(w, "name, address and client_id are required", http.StatusBadRequest)
		return
	}
	if f.Center != nil {
		if err := geo.Validate(*f.Center); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if f.ID == "" {
		f.ID = newID()
	}
	if f.RadiusMiles <= 0 {
		f.RadiusMiles = s.DefaultRadiusMiles
	}
	f.CreatedAt = time.Now().UTC()
	if err := s.Store.SaveFacility(&f); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleGetFacility(w http.ResponseWriter, r *http.Request) {
	f, err := s.Store.GetFacility(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "facility not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleUpdateFacility corrects a facility's geofence. Facilities are
// otherwise immutable once created.
func (s *Server) handleUpdateFacility(w http.ResponseWriter, r *http.Request) {
	f, err := s.Store.GetFacility(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "facility not found", http.StatusNotFound)
		return
	}
	var req struct {
		Lat         *float64 `json:"lat"`
		Lng         *float64 `json:"lng"`
		RadiusMiles *float64 `json:"geofence_radius_miles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Lat != nil && req.Lng != nil {
		c := models.Coord{Lat: *req.Lat, Lng: *req.Lng}
		if err := geo.Validate(c); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Center = &c
	}
	if req.RadiusMiles != nil {
		if *req.RadiusMiles <= 0 {
			http.Error(w, "geofence_radius_miles must be > 0", http.StatusBadRequest)
			return
		}
		f.RadiusMiles = *req.RadiusMiles
	}
	if err := s.Store.SaveFacility(f); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleCreateLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferenceNumber    string    `json:"reference_number"`
		ClientID           string    `json:"client_id"`
		DriverID           string    `json:"driver_id"`
		VehicleID          string    `json:"vehicle_id"`
		PickupFacilityID   string    `json:"pickup_facility_id"`
		DeliveryFacilityID string    `json:"delivery_facility_id"`
		ScheduledPickup    time.Time `json:"scheduled_pickup_time"`
		ScheduledDelivery  time.Time `json:"scheduled_delivery_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PickupFacilityID == "" || req.DeliveryFacilityID == "" {
		http.Error(w, "pickup_facility_id and delivery_facility_id are required", http.StatusBadRequest)
		return
	}
	if req.ScheduledPickup.IsZero() || req.ScheduledDelivery.IsZero() {
		http.Error(w, "scheduled_pickup_time and scheduled_delivery_time are required", http.StatusBadRequest)
		return
	}
	pickup, err := s.Store.GetFacility(req.PickupFacilityID)
	if err != nil {
		http.Error(w, "pickup facility not found", http.StatusBadRequest)
		return
	}
	delivery, err := s.Store.GetFacility(req.DeliveryFacilityID)
	if err != nil {
		http.Error(w, "delivery facility not found", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	load := &models.Load{
		ID:                newID(),
		ReferenceNumber:   req.ReferenceNumber,
		ClientID:          req.ClientID,
		DriverID:          req.DriverID,
		VehicleID:         req.VehicleID,
		PickupFacility:    pickup,
		DeliveryFacility:  delivery,
		ScheduledPickup:   req.ScheduledPickup,
		ScheduledDelivery: req.ScheduledDelivery,
		Status:            models.StatusScheduled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if load.ReferenceNumber == "" {
		load.ReferenceNumber = "LD-" + load.ID
	}
	if err := s.Store.SaveLoad(load); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, load)
}

func (s *Server) handleGetLoad(w http.ResponseWriter, r *http.Request) {
	load, err := s.Store.GetLoad(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "load not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, load)
}

// handleCancelLoad is the only path that sets cancelled; the tracking
// engine never does.
func (s *Server) handleCancelLoad(w http.ResponseWriter, r *http.Request) {
	load, err := s.Store.GetLoad(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "load not found", http.StatusNotFound)
		return
	}
	if load.Status.Terminal() {
		http.Error(w, fmt.Sprintf("load is already %s", load.Status), http.StatusConflict)
		return
	}
	load.Status = models.StatusCancelled
	if err := s.Store.UpdateLoad(load); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("load cancelled", "load_id", load.ID)
	writeJSON(w, http.StatusOK, load)
}

// handleCorrectTimestamps lets a dispatcher fix actual event times after the
// fact, for loads tracked at facilities with bad geofence data. Status is
// deliberately not editable here.
func (s *Server) handleCorrectTimestamps(w http.ResponseWriter, r *http.Request) {
	load, err := s.Store.GetLoad(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "load not found", http.StatusNotFound)
		return
	}
	var req struct {
		ActualPickupArrival     *time.Time `json:"actual_pickup_arrival"`
		ActualPickupDeparture   *time.Time `json:"actual_pickup_departure"`
		ActualDeliveryArrival   *time.Time `json:"actual_delivery_arrival"`
		ActualDeliveryDeparture *time.Time `json:"actual_delivery_departure"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ActualPickupArrival != nil {
		load.ActualPickupArrival = req.ActualPickupArrival
	}
	if req.ActualPickupDeparture != nil {
		load.ActualPickupDeparture = req.ActualPickupDeparture
	}
	if req.ActualDeliveryArrival != nil {
		load.ActualDeliveryArrival = req.ActualDeliveryArrival
	}
	if req.ActualDeliveryDeparture != nil {
		load.ActualDeliveryDeparture = req.ActualDeliveryDeparture
	}
	if err := checkEventOrder(load); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	load.UpdatedAt = time.Now().UTC()
	if err := s.Store.UpdateLoad(load); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, load)
}

// checkEventOrder rejects corrections that would leave a departure without
// its arrival, or before it. The engine can never produce such a load; the
// only way to get one is a bad manual edit.
func checkEventOrder(l *models.Load) error {
	if l.ActualPickupDeparture != nil {
		if l.ActualPickupArrival == nil {
			return fmt.Errorf("pickup departure requires a pickup arrival")
		}
		if l.ActualPickupDeparture.Before(*l.ActualPickupArrival) {
			return fmt.Errorf("pickup departure precedes pickup arrival")
		}
	}
	if l.ActualDeliveryDeparture != nil {
		if l.ActualDeliveryArrival == nil {
			return fmt.Errorf("delivery departure requires a delivery arrival")
		}
		if l.ActualDeliveryDeparture.Before(*l.ActualDeliveryArrival) {
			return fmt.Errorf("delivery departure precedes delivery arrival")
		}
	}
	return nil
}

func (s *Server) handleRefreshETA(w http.ResponseWriter, r *http.Request) {
	load, err := s.Store.GetLoad(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "load not found", http.StatusNotFound)
		return
	}
	if !load.DeliveryFacility.HasGeofence() {
		http.Error(w, "delivery facility has no coordinates", http.StatusUnprocessableEntity)
		return
	}
	posVal, ok := s.lastPos.Load(load.VehicleID)
	if !ok {
		http.Error(w, "no known position for assigned vehicle", http.StatusUnprocessableEntity)
		return
	}
	from := posVal.(models.Coord)
	arrival := s.ETA.Arrival(from, *load.DeliveryFacility.Center, time.Now().UTC())
	load.CurrentETA = &arrival
	if err := s.Store.UpdateLoad(load); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"load_id":     load.ID,
		"current_eta": arrival,
		"at_risk":     load.AtRisk(),
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	load, err := s.Store.GetLoad(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "load not found", http.StatusNotFound)
		return
	}
	cands, err := s.Assign.Suggest(load)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"load_id": load.ID, "candidates": cands})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleID string `json:"vehicle_id"`
		DriverID  string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	load, err := s.Assign.Assign(mux.Vars(r)["id"], req.VehicleID, req.DriverID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, load)
}

func (s *Server) handleBillingHold(w http.ResponseWriter, r *http.Request) {
	if s.Billing == nil {
		http.Error(w, "billing not configured", http.StatusNotImplemented)
		return
	}
	var req struct {
		AmountCents int64  `json:"amount_cents"`
		Currency    string `json:"currency"`
		CustomerID  string `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	piID, err := s.Billing.HoldLinehaul(r.Context(), req.AmountCents, req.Currency, req.CustomerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payment_intent_id": piID})
}

func (s *Server) handleBillingCapture(w http.ResponseWriter, r *http.Request) {
	s.billingAction(w, r, func(piID string) error {
		load, err := s.Store.GetLoad(mux.Vars(r)["id"])
		if err != nil {
			return fmt.Errorf("load not found")
		}
		if load.Status != models.StatusDelivered {
			return fmt.Errorf("load %s is %s, not delivered", load.ID, load.Status)
		}
		return s.Billing.CaptureOnDelivery(r.Context(), piID)
	})
}

func (s *Server) handleBillingRelease(w http.ResponseWriter, r *http.Request) {
	s.billingAction(w, r, func(piID string) error {
		return s.Billing.Release(r.Context(), piID)
	})
}

func (s *Server) billingAction(w http.ResponseWriter, r *http.Request, fn func(piID string) error) {
	if s.Billing == nil {
		http.Error(w, "billing not configured", http.StatusNotImplemented)
		return
	}
	var req struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := fn(req.PaymentIntentID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleScorecards(w http.ResponseWriter, r *http.Request) {
	days := periodDays(r.URL.Query().Get("period"))
	loads, err := s.Store.ListLoads()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	window := scorecard.LastDays(days, time.Now().UTC())
	entries := scorecard.Rank(scorecard.Summarize(loads, window, scorecard.ByDriver))

	type row struct {
		Rank                int     `json:"rank"`
		DriverID            string  `json:"driver_id"`
		TotalLoads          int     `json:"total_loads"`
		OnTimePickupPct     float64 `json:"on_time_pickup_pct"`
		OnTimeDeliveryPct   float64 `json:"on_time_delivery_pct"`
		FullyOnTime         int     `json:"fully_on_time"`
		OverallScore        float64 `json:"overall_score"`
		AverageDelayMinutes float64 `json:"average_delay_minutes"`
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, row{
			Rank:                e.Rank,
			DriverID:            e.DriverID,
			TotalLoads:          e.Stats.Loads,
			OnTimePickupPct:     e.Stats.PickupPct(),
			OnTimeDeliveryPct:   e.Stats.DeliveryPct(),
			FullyOnTime:         e.Stats.FullyOnTime,
			OverallScore:        e.Score,
			AverageDelayMinutes: e.Stats.AvgDelayMinutes(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period_days": days,
		"scorecards":  rows,
	})
}

func (s *Server) handleDriverPerformance(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["id"]
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	loads, err := s.Store.ListLoads()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	window := scorecard.LastDays(days, time.Now().UTC())
	rollup := scorecard.DailyRollup(loads, driverID, window)
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": driverID, "daily": rollup})
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	loads, err := s.Store.ListLoads()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	window := scorecard.LastDays(days, time.Now().UTC())
	sum := scorecard.BuildSummary(loads, window, r.URL.Query().Get("driver_id"))
	writeJSON(w, http.StatusOK, sum)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["client_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func periodDays(period string) int {
	switch period {
	case "week":
		return 7
	case "quarter":
		return 90
	case "year":
		return 365
	default:
		return 30
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
