// Package store is the Store adapter of spec.md §4.5: a thin capability
// surface over a relational engine, providing the conditional-update (CAS)
// semantics the matching algorithm (§4.1.1) depends on. Modeled on
// arkeep/server/internal/db: gorm models plus a Config/New pair that opens
// either a pure-Go SQLite or a Postgres connection and applies embedded
// migrations.
package store

import "time"

// TaxiStatus is the status enum from spec.md §3.
type TaxiStatus string

const (
	StatusAvailable   TaxiStatus = "available"
	StatusUnavailable TaxiStatus = "unavailable"
)

// AssignmentStatus is the assignment lifecycle enum from spec.md §3.
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentCompleted AssignmentStatus = "completed"
)

// Taxi is the persisted record for one taxi (spec.md §3). TaxiID is the
// caller-assigned integer identity, not a gorm auto-increment surrogate —
// re-registration (I5) upserts on this key.
type Taxi struct {
	TaxiID    int        `gorm:"primaryKey;autoIncrement:false;column:taxi_id"`
	PosX      int        `gorm:"column:pos_x;not null"`
	PosY      int        `gorm:"column:pos_y;not null"`
	Speed     int        `gorm:"not null"`
	Status    TaxiStatus `gorm:"not null"`
	Connected bool       `gorm:"not null"`
	// Stopped is permanent once set (Open Question 3): a taxi that reaches
	// a grid border is retired to unavailable and must never be claimed or
	// released back to available again.
	Stopped     bool `gorm:"not null;default:false"`
	InitialPosX int  `gorm:"column:initial_pos_x;not null"`
	InitialPosY int  `gorm:"column:initial_pos_y;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Taxi) TableName() string { return "taxis" }

// UserRequest is the persisted record for one ride request (spec.md §3).
type UserRequest struct {
	ID          uint `gorm:"primaryKey"`
	UserID      int  `gorm:"column:user_id;not null;index"`
	PosX        int  `gorm:"column:pos_x;not null"`
	PosY        int  `gorm:"column:pos_y;not null"`
	WaitTime    int  `gorm:"column:wait_time;not null"`
	RequestTime time.Time `gorm:"column:request_time;not null"`
}

func (UserRequest) TableName() string { return "users" }

// Assignment is the binding of a UserRequest to a Taxi (spec.md §3).
type Assignment struct {
	AssignmentID   uint             `gorm:"primaryKey;column:assignment_id"`
	UserID         int              `gorm:"column:user_id;not null;index"`
	TaxiID         int              `gorm:"column:taxi_id;not null;index"`
	AssignmentTime time.Time        `gorm:"column:assignment_time;not null"`
	Status         AssignmentStatus `gorm:"not null"`
}

func (Assignment) TableName() string { return "assignments" }

// HeartbeatRecord is the durable record of the most recent heartbeat for a
// taxi (spec.md §3). The dispatcher's in-memory liveness view (§3,
// "Dispatcher Liveness View") is rebuilt from this table on backup
// activation (§4.3).
type HeartbeatRecord struct {
	TaxiID    int       `gorm:"primaryKey;autoIncrement:false;column:taxi_id"`
	Timestamp time.Time `gorm:"not null"`
}

func (HeartbeatRecord) TableName() string { return "heartbeat" }
