package model

import (
	"strings"
	"time"

	"edu-access-core/internal/domain"
)

const maxDeviceIDLen = 128

// User is the identity record as seen by the entitlement core: the cached
// subscription fields and the device binding. Credentials are read-only here.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time

	// Cached subscription state, rebuildable from subscriptions.
	Plan                 string
	IsActiveSubscription bool
	ActivatedAt          *time.Time
	ExpiresAt            *time.Time

	// Device binding.
	DeviceSlot1  *string
	DeviceSlot2  *string
	ActiveDevice *string
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// IsPrivileged reports whether the account bypasses device checks.
func (u *User) IsPrivileged() bool { return u.IsStaff || u.IsSuperuser }

// HasLiveGrant reports whether the cached fields describe an unexpired grant.
func (u *User) HasLiveGrant(now time.Time) bool {
	if u == nil || !u.IsActiveSubscription {
		return false
	}
	return u.ExpiresAt == nil || u.ExpiresAt.After(now)
}

// NormalizeDeviceID trims the id and rejects empty or oversized values.
func NormalizeDeviceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrDeviceRequired
	}
	if len(id) > maxDeviceIDLen {
		return "", domain.ErrInvalidArgument
	}
	return id, nil
}

// BindDevice records a login from deviceID: a known device is re-activated,
// an unknown one takes the first empty slot. It returns ErrTooManyDevices when
// both slots hold other devices. Privileged users are left untouched.
func (u *User) BindDevice(deviceID string) error {
	if u.IsPrivileged() {
		return nil
	}
	id, err := NormalizeDeviceID(deviceID)
	if err != nil {
		return err
	}
	switch {
	case slotHolds(u.DeviceSlot1, id), slotHolds(u.DeviceSlot2, id):
	case slotEmpty(u.DeviceSlot1):
		u.DeviceSlot1 = &id
	case slotEmpty(u.DeviceSlot2):
		u.DeviceSlot2 = &id
	default:
		return domain.ErrTooManyDevices
	}
	u.ActiveDevice = &id
	return nil
}

// AuthorizeDevice checks a per-request device id against the active device.
func (u *User) AuthorizeDevice(deviceID string) error {
	if u.IsPrivileged() {
		return nil
	}
	id := strings.TrimSpace(deviceID)
	if id == "" {
		return domain.ErrDeviceRequired
	}
	if slotEmpty(u.ActiveDevice) || *u.ActiveDevice != id {
		return domain.ErrDeviceMismatch
	}
	return nil
}

func slotEmpty(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }

func slotHolds(s *string, id string) bool { return s != nil && strings.TrimSpace(*s) == id }
