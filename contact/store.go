package contact

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("messages")

// Submission is a stored contact message.
type Submission struct {
	ID string `json:"id"`
	Form
	IP      string    `json:"ip"`
	Referer string    `json:"referer,omitempty"`
	Created time.Time `json:"created"`
}

// Store keeps submissions in a bolt bucket keyed by time ordered UUIDs.
type Store struct {
	db *bolt.DB
}

func NewStore(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create messages bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Save assigns an ID and creation time and writes the submission.
func (s *Store) Save(sub *Submission) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	sub.ID = id.String()
	if sub.Created.IsZero() {
		sub.Created = time.Now().UTC()
	}
	b, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(sub.ID), b)
	})
}

// List returns up to limit submissions, newest first. limit <= 0 lists all.
func (s *Store) List(limit int) ([]Submission, error) {
	var out []Submission
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var sub Submission
			if err := json.Unmarshal(v, &sub); err != nil {
				return fmt.Errorf("decode message %s: %w", k, err)
			}
			out = append(out, sub)
		}
		return nil
	})
	return out, err
}

// Delete removes one submission. Unknown IDs are not an error.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(id))
	})
}

// Count returns the number of stored submissions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucket).Stats().KeyN
		return nil
	})
	return n, err
}
