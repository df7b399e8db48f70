package docstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

var (
	bucketDocuments = []byte("documents")
	bucketMeta      = []byte("meta")
	keyNextID       = []byte("next_id")
)

// Bolt stores documents in a bbolt file. Keys are 8-byte big-endian ids so
// cursor order is id order.
type Bolt struct {
	db     *bolt.DB
	logger *slog.Logger
}

func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	b := &Bolt{
		db:     db,
		logger: slog.Default().With("component", "docstore", "driver", "bolt"),
	}
	n, _ := b.Len(context.Background())
	b.logger.Info("bolt store opened", "path", path, "count", n)
	return b, nil
}

func itob(id int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func btoi(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}

func (b *Bolt) All(_ context.Context) (map[int]string, error) {
	docs := make(map[int]string)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			docs[btoi(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}

func (b *Bolt) Get(_ context.Context, id int) (string, error) {
	var text string
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketDocuments).Get(itob(id)); v != nil {
			text, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading document %d: %w", id, err)
	}
	if !found {
		return "", apperrors.NotFound(id)
	}
	return text, nil
}

// nextID must run inside an update transaction.
func nextID(tx *bolt.Tx) int {
	next := 0
	if v := tx.Bucket(bucketMeta).Get(keyNextID); v != nil {
		next = btoi(v)
	}
	if k, _ := tx.Bucket(bucketDocuments).Cursor().Last(); k != nil {
		if last := btoi(k); last >= next {
			next = last + 1
		}
	}
	return next
}

func (b *Bolt) Insert(ctx context.Context, text string) (int, error) {
	ids, err := b.InsertBatch(ctx, []string{text})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (b *Bolt) InsertBatch(_ context.Context, texts []string) ([]int, error) {
	ids := make([]int, len(texts))
	err := b.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		next := nextID(tx)
		for i, text := range texts {
			if err := docs.Put(itob(next), []byte(text)); err != nil {
				return err
			}
			ids[i] = next
			next++
		}
		return tx.Bucket(bucketMeta).Put(keyNextID, itob(next))
	})
	if err != nil {
		return nil, fmt.Errorf("inserting documents: %w", err)
	}
	return ids, nil
}

func (b *Bolt) Delete(ctx context.Context, id int) (bool, error) {
	notFound, err := b.DeleteBatch(ctx, []int{id})
	if err != nil {
		return false, err
	}
	return len(notFound) == 0, nil
}

func (b *Bolt) DeleteBatch(_ context.Context, ids []int) ([]int, error) {
	notFound := []int{}
	err := b.db.Update(func(tx *bolt.Tx) error {
		// Record the high-water mark before the last id can disappear.
		if err := tx.Bucket(bucketMeta).Put(keyNextID, itob(nextID(tx))); err != nil {
			return err
		}
		docs := tx.Bucket(bucketDocuments)
		removed := make(map[int]bool)
		for _, id := range ids {
			key := itob(id)
			if docs.Get(key) == nil {
				if !removed[id] {
					notFound = append(notFound, id)
				}
				continue
			}
			if err := docs.Delete(key); err != nil {
				return err
			}
			removed[id] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deleting documents: %w", err)
	}
	return notFound, nil
}

func (b *Bolt) Len(_ context.Context) (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketDocuments).Stats().KeyN
		return nil
	})
	return n, err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
