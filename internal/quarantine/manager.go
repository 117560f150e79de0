package quarantine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/threatgate/threatgate/internal/config"
	"github.com/threatgate/threatgate/internal/crypto"
	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/internal/store"
	"github.com/threatgate/threatgate/models"
)

// Manager owns the quarantine lifecycle: making a detected file inert,
// holding it encrypted, and restoring or destroying it later. Exactly one
// current record exists per content hash; quarantining the same content
// twice is rejected, not repeated.
//
// All methods are synchronous and safe for concurrent use. The manager
// never spawns goroutines; periodic cleanup is driven externally by
// [CleanupJob].
type Manager struct {
	dir       string
	retention time.Duration
	key       *memguard.LockedBuffer
	encryptor crypto.FileEncryptor
	stores    *store.Storages
	logger    *logger.Logger

	mu    sync.Mutex
	stats models.QuarantineStatistics
}

// NewManager prepares the quarantine area: the directory and key file are
// created on first run, and the current count and size statistics are
// re-derived from the persisted record set rather than trusted from any
// prior process.
func NewManager(ctx context.Context, cfg config.Quarantine, stores *store.Storages, log *logger.Logger) (*Manager, error) {
	key, err := crypto.LoadOrCreateKey(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("load quarantine key: %w", err)
	}

	count, sizeBytes, err := stores.Quarantine.QuarantineTotals(ctx)
	if err != nil {
		key.Destroy()
		return nil, fmt.Errorf("derive quarantine statistics: %w", err)
	}

	return &Manager{
		dir:       cfg.Dir,
		retention: cfg.Retention,
		key:       key,
		encryptor: crypto.NewFileEncryptor(),
		stores:    stores,
		logger:    log,
		stats: models.QuarantineStatistics{
			CurrentCount:     count,
			CurrentSizeBytes: sizeBytes,
		},
	}, nil
}

// Close wipes the encryption key from memory.
func (m *Manager) Close() {
	m.key.Destroy()
}

// QuarantineFile makes the file at originalPath inert. The sequence is
// fixed: hash, dedup check, encrypt into the quarantine directory, delete
// the plaintext original, persist the record. A failure at any step undoes
// the steps already taken, so the file is either fully quarantined or left
// untouched.
func (m *Manager) QuarantineFile(ctx context.Context, originalPath, reason string, verdict models.Verdict) (models.QuarantineRecord, error) {
	log := logger.FromContext(ctx)

	info, err := os.Stat(originalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return models.QuarantineRecord{}, fmt.Errorf("%w: file %s", store.ErrNotFound, originalPath)
		}
		return models.QuarantineRecord{}, fmt.Errorf("stat file: %w", err)
	}

	hash, err := hashFile(originalPath)
	if err != nil {
		return models.QuarantineRecord{}, fmt.Errorf("hash file: %w", err)
	}

	existing, err := m.stores.Quarantine.FindQuarantineRecordByHash(ctx, hash)
	if err != nil {
		return models.QuarantineRecord{}, err
	}
	if existing != nil {
		return models.QuarantineRecord{}, fmt.Errorf("%w: content %s held by record %d",
			store.ErrAlreadyQuarantined, hash, existing.ID)
	}

	if reason == "" {
		reason = verdictReason(verdict)
	}

	now := time.Now().UTC()
	quarantinePath := filepath.Join(m.dir, quarantineFileName(now, hash, originalPath))

	if err = m.encryptor.EncryptFile(originalPath, quarantinePath, m.key.Bytes()); err != nil {
		return models.QuarantineRecord{}, fmt.Errorf("encrypt file: %w", err)
	}

	// The plaintext must be gone before the record exists; a record
	// pointing at a still-live original would claim containment that
	// never happened.
	if err = os.Remove(originalPath); err != nil {
		if rmErr := os.Remove(quarantinePath); rmErr != nil {
			log.Err(rmErr).
				Str("func", "Manager.QuarantineFile").
				Str("quarantine_path", quarantinePath).
				Msg("failed to remove ciphertext while undoing quarantine")
		}
		return models.QuarantineRecord{}, fmt.Errorf("delete original: %w", err)
	}

	record := models.QuarantineRecord{
		OriginalPath:   originalPath,
		QuarantinePath: quarantinePath,
		Reason:         reason,
		ThreatScore:    verdict.Score,
		ThreatLevel:    verdict.Level,
		QuarantinedAt:  now,
		FileSize:       info.Size(),
		SHA256Hash:     hash,
	}

	record.ID, err = m.stores.Quarantine.CreateQuarantineRecord(ctx, record)
	if err != nil {
		// Without a record the ciphertext is unreachable. Put the
		// plaintext back and drop the blob.
		if restoreErr := m.encryptor.DecryptFile(quarantinePath, originalPath, m.key.Bytes()); restoreErr != nil {
			log.Err(restoreErr).
				Str("func", "Manager.QuarantineFile").
				Str("original_path", originalPath).
				Msg("failed to restore plaintext while undoing quarantine")
		} else if rmErr := os.Remove(quarantinePath); rmErr != nil {
			log.Err(rmErr).
				Str("func", "Manager.QuarantineFile").
				Str("quarantine_path", quarantinePath).
				Msg("failed to remove ciphertext while undoing quarantine")
		}
		return models.QuarantineRecord{}, err
	}

	m.mu.Lock()
	m.stats.TotalQuarantined++
	m.stats.CurrentCount++
	m.stats.CurrentSizeBytes += record.FileSize
	m.mu.Unlock()

	log.Info().
		Any("notification", models.NewQuarantineNotification(record)).
		Int64("file_size", record.FileSize).
		Msg("file quarantined")

	return record, nil
}

// RestoreFile decrypts the quarantined file with the given record id back
// to destPath (or its original location when destPath is empty) and
// destroys the record and ciphertext. The two not-found cases stay
// distinguishable: a missing record and a missing ciphertext file wrap
// [store.ErrNotFound] with different messages.
func (m *Manager) RestoreFile(ctx context.Context, id int64, destPath string) error {
	record, err := m.stores.Quarantine.GetQuarantineRecord(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: quarantine record %d", store.ErrNotFound, id)
		}
		return err
	}

	if destPath == "" {
		destPath = record.OriginalPath
	}

	if _, err = os.Stat(record.QuarantinePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: ciphertext file %s", store.ErrNotFound, record.QuarantinePath)
		}
		return fmt.Errorf("stat ciphertext: %w", err)
	}

	if err = m.encryptor.DecryptFile(record.QuarantinePath, destPath, m.key.Bytes()); err != nil {
		return fmt.Errorf("decrypt file: %w", err)
	}

	if err = m.stores.Quarantine.DeleteQuarantineRecord(ctx, id); err != nil {
		return err
	}

	if err = os.Remove(record.QuarantinePath); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "Manager.RestoreFile").
			Str("quarantine_path", record.QuarantinePath).
			Msg("restored plaintext but failed to remove ciphertext")
	}

	m.mu.Lock()
	m.stats.TotalRestored++
	m.stats.CurrentCount--
	m.stats.CurrentSizeBytes -= record.FileSize
	m.mu.Unlock()

	return nil
}

// DeleteFile permanently destroys the quarantined file with the given
// record id: the record goes first, then the ciphertext. A ciphertext that
// is already gone is not an error.
func (m *Manager) DeleteFile(ctx context.Context, id int64) error {
	record, err := m.stores.Quarantine.GetQuarantineRecord(ctx, id)
	if err != nil {
		return err
	}

	if err = m.stores.Quarantine.DeleteQuarantineRecord(ctx, id); err != nil {
		return err
	}

	if err = os.Remove(record.QuarantinePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove ciphertext: %w", err)
	}

	m.mu.Lock()
	m.stats.TotalDeleted++
	m.stats.CurrentCount--
	m.stats.CurrentSizeBytes -= record.FileSize
	m.mu.Unlock()

	return nil
}

// ListQuarantinedFiles returns current records, newest first, optionally
// filtered by threat level ("" means all).
func (m *Manager) ListQuarantinedFiles(ctx context.Context, level models.ThreatLevel) ([]models.QuarantineRecord, error) {
	return m.stores.Quarantine.ListQuarantineRecords(ctx, level)
}

// GetQuarantineRecord returns the record with the given id.
func (m *Manager) GetQuarantineRecord(ctx context.Context, id int64) (models.QuarantineRecord, error) {
	return m.stores.Quarantine.GetQuarantineRecord(ctx, id)
}

// CleanupExpired removes every quarantined file held strictly longer than
// the retention period. A record quarantined exactly retention ago
// survives until the next sweep. Per-record failures are logged and
// skipped so one broken entry cannot stall the sweep; the returned count
// covers only fully cleaned records.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	log := logger.FromContext(ctx)

	records, err := m.stores.Quarantine.ListQuarantineRecords(ctx, "")
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var cleaned int64

	for _, record := range records {
		if now.Sub(record.QuarantinedAt) <= m.retention {
			continue
		}

		if err = m.stores.Quarantine.DeleteQuarantineRecord(ctx, record.ID); err != nil {
			log.Err(err).
				Str("func", "Manager.CleanupExpired").
				Int64("record_id", record.ID).
				Msg("failed to delete expired quarantine record")
			continue
		}

		if err = os.Remove(record.QuarantinePath); err != nil && !os.IsNotExist(err) {
			log.Err(err).
				Str("func", "Manager.CleanupExpired").
				Str("quarantine_path", record.QuarantinePath).
				Msg("failed to remove expired ciphertext")
		}

		m.mu.Lock()
		m.stats.TotalExpiredCleaned++
		m.stats.CurrentCount--
		m.stats.CurrentSizeBytes -= record.FileSize
		m.mu.Unlock()

		cleaned++
	}

	if cleaned > 0 {
		log.Info().
			Int64("cleaned", cleaned).
			Msg("expired quarantine records removed")
	}

	return cleaned, nil
}

// GetStatistics returns a snapshot of the lifecycle counters.
func (m *Manager) GetStatistics() models.QuarantineStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// verdictReason summarizes a scanner verdict as the human-readable
// quarantine reason.
func verdictReason(v models.Verdict) string {
	level := v.Level
	if level == "" {
		level = models.LevelMedium
	}
	return fmt.Sprintf("threat level %s (score %d, confidence %.2f, %d rules, %d behaviors)",
		level, v.Score, v.Confidence, len(v.MatchedRules), len(v.Behaviors))
}

// hashFile streams the file through SHA-256 without loading it whole.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
