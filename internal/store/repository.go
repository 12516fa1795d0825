package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the capability surface spec.md §4.5 grants to the dispatcher.
// Modeled on arkeep/server/internal/repositories.AgentRepository: a narrow
// interface per aggregate, wrapped errors naming the operation, partial
// column updates via Model().Where().Updates() rather than full-struct
// saves.
type Store interface {
	// UpsertTaxi inserts a new taxi or, if TaxiID already exists,
	// overwrites its pose/speed and marks it connected (I5: re-registration
	// replaces stale pose/speed state). Status and the stopped flag are
	// left untouched on an existing row: re-registration must never
	// forfeit an in-flight assignment (I5/P6) or resurrect a permanently
	// stopped taxi (Open Question 3).
	UpsertTaxi(taxiID, x, y, speed int) (Taxi, error)

	// GetTaxi returns the current persisted row for taxiID, or ErrNotFound.
	GetTaxi(taxiID int) (Taxi, error)

	// SetTaxiPosition updates a connected taxi's last-known position.
	// Per Open Question 1, callers must not invoke this for a
	// disconnected taxi.
	SetTaxiPosition(taxiID, x, y int) error

	// SetTaxiConnected flips the connected flag without touching status
	// (Open Question 2: connected tracks reachability only).
	SetTaxiConnected(taxiID int, connected bool) error

	// TryClaimAvailableTaxi atomically transitions taxiID from
	// available+connected to unavailable, returning ErrNoClaim if the row
	// no longer matched (I1, the CAS invariant the matching algorithm
	// relies on).
	TryClaimAvailableTaxi(taxiID int) error

	// ReleaseTaxi returns a taxi to available at the given position,
	// typically its registered initial position (§4.1.1, service
	// completion). A permanently stopped taxi (see MarkTaxiStopped) stays
	// unavailable; only its position is updated.
	ReleaseTaxi(taxiID, x, y int) error

	// MarkTaxiStopped permanently retires taxiID to unavailable (Open
	// Question 3). Unlike TryClaimAvailableTaxi/ReleaseTaxi this is not a
	// CAS: once set, no other Store method ever flips status back to
	// available for this taxi_id again.
	MarkTaxiStopped(taxiID int) error

	// ListAvailableTaxis returns every taxi currently available and
	// connected, for in-process candidate scanning (§4.1.1: sorted in Go,
	// not via SQL ORDER BY, so the tie-break rule stays testable).
	ListAvailableTaxis() ([]Taxi, error)

	// ListAllTaxis returns every registered taxi regardless of status or
	// connectivity, for the console fleet table.
	ListAllTaxis() ([]Taxi, error)

	// InsertUserRequest records an incoming ride request.
	InsertUserRequest(userID, x, y, waitTime int) (UserRequest, error)

	// InsertAssignment records a new assignment in "assigned" status.
	InsertAssignment(userID, taxiID int) (Assignment, error)

	// CompleteAssignment marks an assignment "completed" once the
	// simulated service duration elapses (§4.1.1, service timer).
	CompleteAssignment(assignmentID uint) error

	// RecordHeartbeat upserts the most recent heartbeat timestamp for a
	// taxi, keyed by taxi_id.
	RecordHeartbeat(taxiID int, at time.Time) error

	// LastHeartbeat returns the most recent recorded heartbeat for taxiID.
	LastHeartbeat(taxiID int) (HeartbeatRecord, error)

	// ListHeartbeats returns every heartbeat record, used to rebuild the
	// liveness view on backup activation (§4.3).
	ListHeartbeats() ([]HeartbeatRecord, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an opened *gorm.DB as a Store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) UpsertTaxi(taxiID, x, y, speed int) (Taxi, error) {
	now := time.Now().UTC()
	taxi := Taxi{
		TaxiID:      taxiID,
		PosX:        x,
		PosY:        y,
		Speed:       speed,
		Status:      StatusAvailable,
		Connected:   true,
		InitialPosX: x,
		InitialPosY: y,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var existing Taxi
	err := s.db.First(&existing, "taxi_id = ?", taxiID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.Create(&taxi).Error; err != nil {
			return Taxi{}, fmt.Errorf("store: upsert taxi %d: create: %w", taxiID, err)
		}
		return taxi, nil
	case err != nil:
		return Taxi{}, fmt.Errorf("store: upsert taxi %d: lookup: %w", taxiID, err)
	}

	taxi.CreatedAt = existing.CreatedAt
	// I5/P6: re-registration must never forfeit an in-flight assignment or
	// resurrect a permanently stopped taxi. Status (and the stopped flag,
	// left untouched below) carry over from the existing row rather than
	// being forced back to available.
	taxi.Status = existing.Status
	taxi.Stopped = existing.Stopped
	if err := s.db.Model(&Taxi{}).Where("taxi_id = ?", taxiID).Updates(map[string]interface{}{
		"pos_x":         x,
		"pos_y":         y,
		"speed":         speed,
		"status":        existing.Status,
		"connected":     true,
		"initial_pos_x": x,
		"initial_pos_y": y,
		"updated_at":    now,
	}).Error; err != nil {
		return Taxi{}, fmt.Errorf("store: upsert taxi %d: update: %w", taxiID, err)
	}
	return taxi, nil
}

func (s *gormStore) GetTaxi(taxiID int) (Taxi, error) {
	var taxi Taxi
	if err := s.db.First(&taxi, "taxi_id = ?", taxiID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Taxi{}, ErrNotFound
		}
		return Taxi{}, fmt.Errorf("store: get taxi %d: %w", taxiID, err)
	}
	return taxi, nil
}

func (s *gormStore) SetTaxiPosition(taxiID, x, y int) error {
	res := s.db.Model(&Taxi{}).Where("taxi_id = ?", taxiID).Updates(map[string]interface{}{
		"pos_x":      x,
		"pos_y":      y,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("store: set taxi %d position: %w", taxiID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) SetTaxiConnected(taxiID int, connected bool) error {
	res := s.db.Model(&Taxi{}).Where("taxi_id = ?", taxiID).Updates(map[string]interface{}{
		"connected":  connected,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("store: set taxi %d connected=%v: %w", taxiID, connected, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TryClaimAvailableTaxi is the CAS operation I1-I3 depend on: the WHERE
// clause re-checks status and connected at the database level, so a second
// concurrent claim attempt against the same taxi_id affects zero rows.
// Grounded on arkeep/server/internal/repositories/agent.go's UpdateStatus,
// which checks RowsAffected rather than trusting a prior read.
func (s *gormStore) TryClaimAvailableTaxi(taxiID int) error {
	res := s.db.Model(&Taxi{}).
		Where("taxi_id = ? AND status = ? AND connected = ? AND stopped = ?", taxiID, StatusAvailable, true, false).
		Updates(map[string]interface{}{
			"status":     StatusUnavailable,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("store: claim taxi %d: %w", taxiID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoClaim
	}
	return nil
}

// ReleaseTaxi returns a completed-service taxi to available, unless it has
// permanently stopped (Open Question 3), in which case its status is left
// unavailable and only its final position is recorded.
func (s *gormStore) ReleaseTaxi(taxiID, x, y int) error {
	var taxi Taxi
	if err := s.db.First(&taxi, "taxi_id = ?", taxiID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("store: release taxi %d: lookup: %w", taxiID, err)
	}

	updates := map[string]interface{}{
		"pos_x":      x,
		"pos_y":      y,
		"updated_at": time.Now().UTC(),
	}
	if !taxi.Stopped {
		updates["status"] = StatusAvailable
	}

	res := s.db.Model(&Taxi{}).Where("taxi_id = ?", taxiID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: release taxi %d: %w", taxiID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTaxiStopped permanently retires taxiID to unavailable (Open Question
// 3: a taxi that reaches a grid border is never claimed or released back to
// available again).
func (s *gormStore) MarkTaxiStopped(taxiID int) error {
	res := s.db.Model(&Taxi{}).Where("taxi_id = ?", taxiID).Updates(map[string]interface{}{
		"status":     StatusUnavailable,
		"stopped":    true,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("store: mark taxi %d stopped: %w", taxiID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListAvailableTaxis() ([]Taxi, error) {
	var taxis []Taxi
	if err := s.db.Where("status = ? AND connected = ?", StatusAvailable, true).Find(&taxis).Error; err != nil {
		return nil, fmt.Errorf("store: list available taxis: %w", err)
	}
	return taxis, nil
}

func (s *gormStore) ListAllTaxis() ([]Taxi, error) {
	var taxis []Taxi
	if err := s.db.Order("taxi_id").Find(&taxis).Error; err != nil {
		return nil, fmt.Errorf("store: list all taxis: %w", err)
	}
	return taxis, nil
}

func (s *gormStore) InsertUserRequest(userID, x, y, waitTime int) (UserRequest, error) {
	req := UserRequest{
		UserID:      userID,
		PosX:        x,
		PosY:        y,
		WaitTime:    waitTime,
		RequestTime: time.Now().UTC(),
	}
	if err := s.db.Create(&req).Error; err != nil {
		return UserRequest{}, fmt.Errorf("store: insert user request %d: %w", userID, err)
	}
	return req, nil
}

func (s *gormStore) InsertAssignment(userID, taxiID int) (Assignment, error) {
	assignment := Assignment{
		UserID:         userID,
		TaxiID:         taxiID,
		AssignmentTime: time.Now().UTC(),
		Status:         AssignmentAssigned,
	}
	if err := s.db.Create(&assignment).Error; err != nil {
		return Assignment{}, fmt.Errorf("store: insert assignment user=%d taxi=%d: %w", userID, taxiID, err)
	}
	return assignment, nil
}

func (s *gormStore) CompleteAssignment(assignmentID uint) error {
	res := s.db.Model(&Assignment{}).Where("assignment_id = ?", assignmentID).
		Update("status", AssignmentCompleted)
	if res.Error != nil {
		return fmt.Errorf("store: complete assignment %d: %w", assignmentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) RecordHeartbeat(taxiID int, at time.Time) error {
	record := HeartbeatRecord{TaxiID: taxiID, Timestamp: at}
	err := s.db.Where("taxi_id = ?", taxiID).First(&HeartbeatRecord{}).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.Create(&record).Error; err != nil {
			return fmt.Errorf("store: record heartbeat %d: create: %w", taxiID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("store: record heartbeat %d: lookup: %w", taxiID, err)
	}

	if err := s.db.Model(&HeartbeatRecord{}).Where("taxi_id = ?", taxiID).
		Update("timestamp", at).Error; err != nil {
		return fmt.Errorf("store: record heartbeat %d: update: %w", taxiID, err)
	}
	return nil
}

func (s *gormStore) LastHeartbeat(taxiID int) (HeartbeatRecord, error) {
	var record HeartbeatRecord
	if err := s.db.First(&record, "taxi_id = ?", taxiID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return HeartbeatRecord{}, ErrNotFound
		}
		return HeartbeatRecord{}, fmt.Errorf("store: last heartbeat %d: %w", taxiID, err)
	}
	return record, nil
}

func (s *gormStore) ListHeartbeats() ([]HeartbeatRecord, error) {
	var records []HeartbeatRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store: list heartbeats: %w", err)
	}
	return records, nil
}
