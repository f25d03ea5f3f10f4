package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bass5068/bottle-redeem/internal/crypto"
	"github.com/bass5068/bottle-redeem/internal/model"
)

func newID() string {
	return uuid.NewString()
}

// RegisterDevice stores a new kiosk and returns its API key. Only the bcrypt hash is
// persisted; the key cannot be recovered later.
func (s *Service) RegisterDevice(ctx context.Context, name string) (model.Device, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Device{}, "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	key, err := crypto.NewDeviceKey()
	if err != nil {
		return model.Device{}, "", err
	}
	hash, err := crypto.HashDeviceKey(key)
	if err != nil {
		return model.Device{}, "", err
	}
	device := model.Device{
		ID:        newID(),
		Name:      name,
		KeyHash:   hash,
		CreatedAt: s.clock(),
	}
	if err := s.store.Reader().CreateDevice(ctx, device); err != nil {
		return model.Device{}, "", err
	}
	return device, key, nil
}

// AuthenticateDevice reports ErrDeviceUnauthorized for unknown, revoked and
// mismatched credentials alike.
func (s *Service) AuthenticateDevice(ctx context.Context, id, key string) (model.Device, error) {
	if id == "" || key == "" {
		return model.Device{}, ErrDeviceUnauthorized
	}
	reader := s.store.Reader()
	device, err := reader.GetDevice(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Device{}, ErrDeviceUnauthorized
	}
	if err != nil {
		return model.Device{}, err
	}
	if !device.Active() || crypto.CheckDeviceKey(device.KeyHash, key) != nil {
		return model.Device{}, ErrDeviceUnauthorized
	}
	now := s.clock()
	if err := reader.TouchDevice(ctx, id, now); err != nil {
		return model.Device{}, err
	}
	device.LastSeenAt = &now
	return device, nil
}

func (s *Service) ListDevices(ctx context.Context) ([]model.Device, error) {
	return s.store.Reader().ListDevices(ctx)
}

func (s *Service) RevokeDevice(ctx context.Context, id string) error {
	ok, err := s.store.Reader().RevokeDevice(ctx, id, s.clock())
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeviceNotFound
	}
	return nil
}

// NotifyBinFull relays a kiosk's bin-full signal to the operators.
func (s *Service) NotifyBinFull(ctx context.Context, device model.Device, message string) {
	text := fmt.Sprintf("Bin full at %s", device.Name)
	if message = strings.TrimSpace(message); message != "" {
		text += ": " + message
	}
	s.alert(ctx, text)
}
