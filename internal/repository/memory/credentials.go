package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

type twoFactor struct{ s *Store }

func (r *twoFactor) Get(_ context.Context, userID string) (*domain.TwoFactor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tf, ok := r.s.twoFactor[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	tf.BackupCodes = append([]string(nil), tf.BackupCodes...)
	return &tf, nil
}

func (r *twoFactor) SavePending(_ context.Context, tf *domain.TwoFactor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.twoFactor[tf.UserID]
	if ok && existing.Enabled {
		return repository.ErrAlreadyEnabled
	}
	now := time.Now().UTC()
	rec := domain.TwoFactor{
		UserID:      tf.UserID,
		Secret:      tf.Secret,
		BackupCodes: append([]string(nil), tf.BackupCodes...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ok {
		rec.CreatedAt = existing.CreatedAt
	}
	r.s.twoFactor[tf.UserID] = rec
	tf.Enabled = false
	return nil
}

func (r *twoFactor) Enable(_ context.Context, userID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tf, ok := r.s.twoFactor[userID]
	if !ok || tf.Enabled {
		return repository.ErrNotFound
	}
	tf.Enabled = true
	tf.VerifiedAt = &now
	tf.UpdatedAt = now
	r.s.twoFactor[userID] = tf
	return nil
}

func (r *twoFactor) Delete(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.twoFactor[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.twoFactor, userID)
	return nil
}

func (r *twoFactor) TouchLastUsed(_ context.Context, userID string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tf, ok := r.s.twoFactor[userID]; ok {
		tf.LastUsed = &now
		r.s.twoFactor[userID] = tf
	}
	return nil
}

func (r *twoFactor) ConsumeBackupCode(_ context.Context, userID, hash string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tf, ok := r.s.twoFactor[userID]
	if !ok || !tf.Enabled {
		return false, nil
	}
	remaining := make([]string, 0, len(tf.BackupCodes))
	found := false
	for _, h := range tf.BackupCodes {
		if h == hash {
			found = true
			continue
		}
		remaining = append(remaining, h)
	}
	if !found {
		return false, nil
	}
	tf.BackupCodes = remaining
	tf.LastUsed = &now
	r.s.twoFactor[userID] = tf
	return true, nil
}

type passwordResets struct{ s *Store }

func (r *passwordResets) Replace(_ context.Context, reset *domain.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if reset.ID == "" {
		reset.ID = uuid.NewString()
	}
	reset.Used = false
	reset.UsedAt = nil
	reset.CreatedAt = time.Now().UTC()
	r.s.resets[reset.UserID] = *reset
	return nil
}

func (r *passwordResets) Redeem(_ context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for userID, reset := range r.s.resets {
		if reset.TokenHash != tokenHash {
			continue
		}
		if reset.Used {
			return "", repository.ErrTokenAlreadyUsed
		}
		if !now.Before(reset.ExpiresAt) {
			return "", repository.ErrTokenExpired
		}
		user, ok := r.s.users[userID]
		if !ok {
			return "", repository.ErrNotFound
		}
		reset.Used = true
		reset.UsedAt = &now
		r.s.resets[userID] = reset
		user.PasswordHash = passwordHash
		user.UpdatedAt = now
		r.s.users[userID] = user
		return userID, nil
	}
	return "", repository.ErrNotFound
}

func (r *passwordResets) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for userID, reset := range r.s.resets {
		if !now.Before(reset.ExpiresAt) {
			delete(r.s.resets, userID)
			n++
		}
	}
	return n, nil
}

type accountRecoveries struct{ s *Store }

func (r *accountRecoveries) Get(_ context.Context, userID string) (*domain.AccountRecovery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recoveries[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRecovery(rec), nil
}

func (r *accountRecoveries) GetByTokenHash(_ context.Context, tokenHash string) (*domain.AccountRecovery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tokenHash == "" {
		return nil, repository.ErrNotFound
	}
	for _, rec := range r.s.recoveries {
		if rec.TokenHash == tokenHash {
			return cloneRecovery(rec), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *accountRecoveries) Save(_ context.Context, rec *domain.AccountRecovery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.s.recoveries[rec.UserID]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.CreatedAt = now
	}
	rec.Used = false
	rec.UsedAt = nil
	rec.UpdatedAt = now
	r.s.recoveries[rec.UserID] = *cloneRecovery(*rec)
	return nil
}

func (r *accountRecoveries) IssueToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recoveries[userID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.TokenHash = tokenHash
	rec.ExpiresAt = expiresAt
	rec.Used = false
	rec.UsedAt = nil
	rec.UpdatedAt = time.Now().UTC()
	r.s.recoveries[userID] = rec
	return nil
}

func (r *accountRecoveries) Claim(_ context.Context, id, tokenHash string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for userID, rec := range r.s.recoveries {
		if rec.ID != id || rec.TokenHash != tokenHash || tokenHash == "" {
			continue
		}
		if rec.Used {
			return repository.ErrTokenAlreadyUsed
		}
		if !now.Before(rec.ExpiresAt) {
			return repository.ErrTokenExpired
		}
		rec.Used = true
		rec.UsedAt = &now
		r.s.recoveries[userID] = rec
		return nil
	}
	return repository.ErrNotFound
}

func (r *accountRecoveries) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for userID, rec := range r.s.recoveries {
		if rec.TokenHash != "" && !now.Before(rec.ExpiresAt) {
			rec.TokenHash = ""
			r.s.recoveries[userID] = rec
			n++
		}
	}
	return n, nil
}

func cloneRecovery(rec domain.AccountRecovery) *domain.AccountRecovery {
	rec.Questions = append([]domain.SecurityQuestion(nil), rec.Questions...)
	return &rec
}

type loginDevices struct{ s *Store }

func (r *loginDevices) Record(_ context.Context, device *domain.LoginDevice) (*time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byUser, ok := r.s.devices[device.UserID]
	if !ok {
		byUser = map[string]domain.LoginDevice{}
		r.s.devices[device.UserID] = byUser
	}
	existing, ok := byUser[device.DeviceID]
	if !ok {
		device.CreatedAt = device.LastUsed
		byUser[device.DeviceID] = *device
		return nil, nil
	}
	previous := existing.LastUsed
	existing.LastUsed = device.LastUsed
	existing.Info.UserAgent = device.Info.UserAgent
	existing.Info.IP = device.Info.IP
	byUser[device.DeviceID] = existing
	device.CreatedAt = existing.CreatedAt
	return &previous, nil
}

func (r *loginDevices) ListByUser(_ context.Context, userID string) ([]domain.LoginDevice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.LoginDevice, 0, len(r.s.devices[userID]))
	for _, d := range r.s.devices[userID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out, nil
}
