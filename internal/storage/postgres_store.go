package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/freight-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveLoad(l *models.Load) error {
	_, err := p.db.Exec(`INSERT INTO loads(
		id, reference_number, client_id, driver_id, vehicle_id,
		pickup_facility_id, delivery_facility_id,
		scheduled_pickup, scheduled_delivery,
		actual_pickup_arrival, actual_pickup_departure,
		actual_delivery_arrival, actual_delivery_departure,
		current_eta, status, version, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		l.ID, l.ReferenceNumber, l.ClientID, nullStr(l.DriverID), nullStr(l.VehicleID),
		facilityID(l.PickupFacility), facilityID(l.DeliveryFacility),
		l.ScheduledPickup, l.ScheduledDelivery,
		nullTime(l.ActualPickupArrival), nullTime(l.ActualPickupDeparture),
		nullTime(l.ActualDeliveryArrival), nullTime(l.ActualDeliveryDeparture),
		nullTime(l.CurrentETA), string(l.Status), l.Version, l.CreatedAt, l.UpdatedAt)
	return err
}

// UpdateLoad serializes concurrent writers through the version column; a
// stale writer touches zero rows and gets ErrVersionConflict back.
func (p *PostgresStore) UpdateLoad(l *models.Load) error {
	res, err := p.db.Exec(`UPDATE loads SET
		driver_id=$1, vehicle_id=$2,
		actual_pickup_arrival=$3, actual_pickup_departure=$4,
		actual_delivery_arrival=$5, actual_delivery_departure=$6,
		current_eta=$7, status=$8, version=version+1, updated_at=$9
		WHERE id=$10 AND version=$11`,
		nullStr(l.DriverID), nullStr(l.VehicleID),
		nullTime(l.ActualPickupArrival), nullTime(l.ActualPickupDeparture),
		nullTime(l.ActualDeliveryArrival), nullTime(l.ActualDeliveryDeparture),
		nullTime(l.CurrentETA), string(l.Status), time.Now(), l.ID, l.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	l.Version++
	return nil
}

const loadColumns = `id, reference_number, client_id,
	COALESCE(driver_id,''), COALESCE(vehicle_id,''),
	pickup_facility_id, delivery_facility_id,
	scheduled_pickup, scheduled_delivery,
	actual_pickup_arrival, actual_pickup_departure,
	actual_delivery_arrival, actual_delivery_departure,
	current_eta, status, version, created_at, updated_at`

func (p *PostgresStore) GetLoad(id string) (*models.Load, error) {
	row := p.db.QueryRow(`SELECT `+loadColumns+` FROM loads WHERE id=$1`, id)
	return p.scanLoad(row)
}

func (p *PostgresStore) ActiveLoadForVehicle(vehicleID string) (*models.Load, error) {
	row := p.db.QueryRow(`SELECT `+loadColumns+` FROM loads
		WHERE vehicle_id=$1 AND status IN ('scheduled','in_transit')
		ORDER BY scheduled_delivery ASC LIMIT 1`, vehicleID)
	return p.scanLoad(row)
}

func (p *PostgresStore) ListLoads() ([]*models.Load, error) {
	rows, err := p.db.Query(`SELECT ` + loadColumns + ` FROM loads`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Load
	for rows.Next() {
		l, err := p.scanLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanLoad(row rowScanner) (*models.Load, error) {
	var (
		l                          models.Load
		pickupID, deliveryID       string
		pArr, pDep, dArr, dDep, et sql.NullTime
		status                     string
	)
	err := row.Scan(&l.ID, &l.ReferenceNumber, &l.ClientID, &l.DriverID, &l.VehicleID,
		&pickupID, &deliveryID, &l.ScheduledPickup, &l.ScheduledDelivery,
		&pArr, &pDep, &dArr, &dDep, &et, &status, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Status = models.LoadStatus(status)
	l.ActualPickupArrival = timePtr(pArr)
	l.ActualPickupDeparture = timePtr(pDep)
	l.ActualDeliveryArrival = timePtr(dArr)
	l.ActualDeliveryDeparture = timePtr(dDep)
	l.CurrentETA = timePtr(et)
	if l.PickupFacility, err = p.GetFacility(pickupID); err != nil {
		return nil, err
	}
	if l.DeliveryFacility, err = p.GetFacility(deliveryID); err != nil {
		return nil, err
	}
	return &l, nil
}

func (p *PostgresStore) AppendLocation(u models.LocationUpdate) error {
	_, err := p.db.Exec(`INSERT INTO location_updates(load_id, vehicle_id, lat, lng, speed_mph, heading, recorded_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)`,
		nullStr(u.LoadID), u.VehicleID, u.Loc.Lat, u.Loc.Lng, u.SpeedMPH, u.Heading, u.Timestamp)
	return err
}

func (p *PostgresStore) SaveFacility(f *models.Facility) error {
	var lat, lng sql.NullFloat64
	if f.Center != nil {
		lat = sql.NullFloat64{Float64: f.Center.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: f.Center.Lng, Valid: true}
	}
	_, err := p.db.Exec(`INSERT INTO facilities(id, name, address, city, state, zip_code, lat, lng, geofence_radius_miles, client_id, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET lat=EXCLUDED.lat, lng=EXCLUDED.lng, geofence_radius_miles=EXCLUDED.geofence_radius_miles`,
		f.ID, f.Name, f.Address, f.City, f.State, f.ZipCode, lat, lng, f.RadiusMiles, f.ClientID, f.CreatedAt)
	return err
}

func (p *PostgresStore) GetFacility(id string) (*models.Facility, error) {
	var (
		f        models.Facility
		lat, lng sql.NullFloat64
	)
	err := p.db.QueryRow(`SELECT id, name, address, COALESCE(city,''), COALESCE(state,''), COALESCE(zip_code,''),
		lat, lng, geofence_radius_miles, client_id, created_at FROM facilities WHERE id=$1`, id).
		Scan(&f.ID, &f.Name, &f.Address, &f.City, &f.State, &f.ZipCode, &lat, &lng, &f.RadiusMiles, &f.ClientID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		f.Center = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &f, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func facilityID(f *models.Facility) string {
	if f == nil {
		return ""
	}
	return f.ID
}
