package media

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/models"
)

const photosBucket = "photos"

// storedPhoto is the persisted form of a photo record. It carries the
// ownership tag and object key, which never leave the library through the
// public API model.
type storedPhoto struct {
	ID           string `json:"id"`
	FileName     string `json:"file_name"`
	ObjectKey    string `json:"object_key"`
	CreatedAt    string `json:"created_at"`
	AddedByMode  string `json:"added_by"`
	OwnershipTag string `json:"ownership_tag"`
}

// Library owns photo metadata, persisted per player in BoltDB, and the blob
// sink behind it. A photo's blob and its metadata record become visible
// together: the blob is written first and removed again if the metadata
// commit fails.
type Library struct {
	db   *bbolt.DB
	sink Sink
}

// NewLibrary opens (or creates) the photo metadata database at dbPath.
func NewLibrary(dbPath string, sink Sink) (*Library, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create media db directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open media db at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(photosBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create photos bucket: %w", err)
	}

	logger.Info("photo library initialized at: %s", dbPath)
	return &Library{db: db, sink: sink}, nil
}

// CreatePhoto stores the blob and its metadata record atomically and returns
// the new record. The ownership tag is set here, exactly once.
func (l *Library) CreatePhoto(playerID string, data []byte, addedByMode, ownershipTag string) (models.UserPhoto, error) {
	photoID := uuid.NewString()
	fileName := fmt.Sprintf("photo_%s.jpg", photoID)
	objectKey := fmt.Sprintf("photos/%s/%s", playerID, fileName)

	if err := l.sink.Put(objectKey, data, "image/jpeg"); err != nil {
		return models.UserPhoto{}, err
	}

	rec := storedPhoto{
		ID:           photoID,
		FileName:     fileName,
		ObjectKey:    objectKey,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		AddedByMode:  addedByMode,
		OwnershipTag: ownershipTag,
	}

	err := l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(photosBucket))
		items, err := decodePhotos(bucket.Get([]byte(playerID)))
		if err != nil {
			return err
		}
		// Newest first.
		items = append([]storedPhoto{rec}, items...)
		encoded, err := json.Marshal(items)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(playerID), encoded)
	})
	if err != nil {
		// Metadata commit failed: the blob must not stay visible.
		if derr := l.sink.Delete(objectKey); derr != nil {
			logger.Error("failed to roll back blob %s: %v", objectKey, derr)
		}
		return models.UserPhoto{}, fmt.Errorf("failed to store photo metadata for %s: %w", playerID, err)
	}

	return l.toModel(playerID, rec), nil
}

// ListPhotos returns a player's photos, newest first. Unknown players get an
// empty list, not an error.
func (l *Library) ListPhotos(playerID string) ([]models.UserPhoto, error) {
	var out []models.UserPhoto
	err := l.db.View(func(tx *bbolt.Tx) error {
		items, err := decodePhotos(tx.Bucket([]byte(photosBucket)).Get([]byte(playerID)))
		if err != nil {
			return err
		}
		out = make([]models.UserPhoto, 0, len(items))
		for _, rec := range items {
			out = append(out, l.toModel(playerID, rec))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for %s: %w", playerID, err)
	}
	return out, nil
}

// GetPhoto returns one photo record including its ownership tag, for the
// authorization check before deletion.
func (l *Library) GetPhoto(playerID, photoID string) (models.UserPhoto, bool, error) {
	var found bool
	var out models.UserPhoto
	err := l.db.View(func(tx *bbolt.Tx) error {
		items, err := decodePhotos(tx.Bucket([]byte(photosBucket)).Get([]byte(playerID)))
		if err != nil {
			return err
		}
		for _, rec := range items {
			if rec.ID == photoID {
				out = l.toModel(playerID, rec)
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return models.UserPhoto{}, false, fmt.Errorf("failed to get photo %s/%s: %w", playerID, photoID, err)
	}
	return out, found, nil
}

// DeletePhoto removes the metadata record and then the blob. The blob delete
// is best-effort: once the metadata is gone the object is unreachable.
func (l *Library) DeletePhoto(playerID, photoID string) error {
	var objectKey string
	err := l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(photosBucket))
		items, err := decodePhotos(bucket.Get([]byte(playerID)))
		if err != nil {
			return err
		}
		kept := items[:0]
		for _, rec := range items {
			if rec.ID == photoID {
				objectKey = rec.ObjectKey
				continue
			}
			kept = append(kept, rec)
		}
		encoded, err := json.Marshal(kept)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(playerID), encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to delete photo %s/%s: %w", playerID, photoID, err)
	}
	if objectKey != "" {
		if err := l.sink.Delete(objectKey); err != nil {
			logger.Warn("failed to delete blob %s: %v", objectKey, err)
		}
	}
	return nil
}

// SetAvatar replaces a player's avatar blob and returns its public URL.
// Avatars are keyed by player id and carry no metadata record.
func (l *Library) SetAvatar(playerID string, data []byte) (string, error) {
	key := avatarKey(playerID)
	if err := l.sink.Put(key, data, "image/jpeg"); err != nil {
		return "", err
	}
	return l.sink.PublicURL(key), nil
}

// AvatarURL returns the public URL of a player's avatar, or "" when none has
// been uploaded.
func (l *Library) AvatarURL(playerID string) string {
	key := avatarKey(playerID)
	if !l.sink.Exists(key) {
		return ""
	}
	return l.sink.PublicURL(key)
}

func (l *Library) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func (l *Library) toModel(playerID string, rec storedPhoto) models.UserPhoto {
	return models.UserPhoto{
		ID:            rec.ID,
		OwnerPlayerID: playerID,
		FileName:      rec.FileName,
		CreatedAt:     rec.CreatedAt,
		AddedByMode:   rec.AddedByMode,
		OwnershipTag:  rec.OwnershipTag,
		ObjectKey:     rec.ObjectKey,
		ImageURL:      l.sink.PublicURL(rec.ObjectKey),
	}
}

func avatarKey(playerID string) string {
	return fmt.Sprintf("avatars/avatar_%s.jpg", playerID)
}

func decodePhotos(raw []byte) ([]storedPhoto, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []storedPhoto
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("corrupt photo metadata: %w", err)
	}
	return items, nil
}
