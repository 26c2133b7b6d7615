package telemetry

import (
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	identityBucket = []byte("identity")
	deviceIDKey    = []byte("device_id")
)

// LoadDeviceID returns the device identifier stored at path, generating and
// persisting one on first use. The id is stable across launches; only the
// session id changes per process.
func LoadDeviceID(path string) (string, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return "", fmt.Errorf("open identity store: %w", err)
	}
	defer db.Close()

	var id string
	err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(identityBucket)
		if err != nil {
			return err
		}
		if v := bkt.Get(deviceIDKey); v != nil {
			id = string(v)
			return nil
		}
		id = "go-" + uuid.NewString()
		return bkt.Put(deviceIDKey, []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	return id, nil
}

// NewSessionID returns a fresh session identifier. Regenerated on every
// launch, unlike the device id.
func NewSessionID() string {
	return "s-" + uuid.NewString()
}
