package model

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts either case; revisions of the sign-in callback wrote "admin" and "ADMIN".
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", errors.New("invalid_role")
	}
}

type RedemptionStatus string

const (
	StatusPending   RedemptionStatus = "PENDING"
	StatusShipped   RedemptionStatus = "SHIPPED"
	StatusCompleted RedemptionStatus = "COMPLETED"
)

func ParseRedemptionStatus(value string) (RedemptionStatus, error) {
	switch RedemptionStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusShipped:
		return StatusShipped, nil
	case StatusCompleted:
		return StatusCompleted, nil
	default:
		return "", errors.New("invalid_status")
	}
}

// Next returns the single forward step from s, if any.
func (s RedemptionStatus) Next() (RedemptionStatus, bool) {
	switch s {
	case StatusPending:
		return StatusShipped, true
	case StatusShipped:
		return StatusCompleted, true
	default:
		return "", false
	}
}

type User struct {
	ID        string
	Email     string
	Name      string
	Image     *string
	Role      Role
	Points    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type QRToken struct {
	Token     string
	Points    int64
	PETBig    int
	PETSmall  int
	Used      bool
	UsedAt    *time.Time
	UsedBy     *string
	CreditedAt *time.Time
	DeviceID   *string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

type Reward struct {
	ID          string
	Name        string
	Points      int64
	Stock       int
	Description *string
	Image       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Redemption struct {
	ID        string
	UserID    string
	RewardID  string
	Points    int64
	Status    RedemptionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RedemptionDetail is a redemption joined with its user and reward. Reward is nil
// when the reward row was deleted after the redemption was recorded.
type RedemptionDetail struct {
	Redemption
	User   *User
	Reward *Reward
}

type LedgerReason string

const (
	ReasonTokenClaim   LedgerReason = "token_claim"
	ReasonManualCredit LedgerReason = "manual_credit"
	ReasonRedemption   LedgerReason = "redemption"
)

type LedgerEntry struct {
	ID           string
	UserID       string
	Delta        int64
	Reason       LedgerReason
	Reference    *string
	BalanceAfter int64
	CreatedAt    time.Time
}

type Device struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  time.Time
	LastSeenAt *time.Time
	RevokedAt  *time.Time
}

func (d Device) Active() bool {
	return d.RevokedAt == nil
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
