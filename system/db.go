package system

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	// for pw, login info, and session storage
	bolt "go.etcd.io/bbolt"
)

var buckets = []string{"password", "userinfo", "authkeys"}

// InitDB opens the bolt database and creates the account buckets.
// Contact messages and the feed cache add their own buckets.
func (s *System) InitDB() error {
	filename := s.Config().Sec.BoltDB
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			s.log.Infow("creating new database", "file", filename)
		} else {
			s.log.Warnw("couldn't get fileinfo for database", "file", filename, "err", err)
		}
	}

	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("open database %q: %w", filename, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create buckets: %w", err)
	}
	s.db = db
	return nil
}

func (s *System) boltdbUpdate(bucket string, id string, val []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(id), val)
	})
}

// boltdbFetch returns a copy of the value, or ErrNotFound when it is empty.
func (s *System) boltdbFetch(bucket, id string) ([]byte, error) {
	var val []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucket)).Get([]byte(id)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(val) == 0 {
		return nil, ErrNotFound
	}
	return val, nil
}

// get userinfo by login ID
func (s *System) getUserByLogin(name string) (*User, error) {
	b, err := s.boltdbFetch("userinfo", name)
	if err != nil {
		return nil, ErrNotFound
	}
	var user = &User{}
	if err := json.Unmarshal(b, user); err != nil {
		s.log.Errorw("error unmarshaling stored userinfo", "user", name, "err", err)
		return nil, ErrNotFound
	}
	return user, nil
}

// simple check hashed pw vs known hashed pw
func (s *System) checkUserPass(id string, clearPass string) bool {
	saltAndHash, err := s.boltdbFetch("password", id)
	if err != nil || len(saltAndHash) != 64 {
		return false
	}
	return compareDigest(hasher(clearPass, saltAndHash[:32]), saltAndHash[32:])
}

func (s *System) doLogin(user, pass string) (*User, error) {
	u, err := s.getUserByLogin(user)
	if err != nil {
		// hash anyway so unknown users take as long as bad passwords
		hasher(pass, make([]byte, 32))
		return nil, ErrBadCredentials
	}
	if !s.checkUserPass(u.ID, pass) {
		return nil, ErrBadCredentials
	}
	authkey, err := s.newAuthkey(u.ID)
	if err != nil {
		return nil, err
	}
	u.authkey = authkey
	return u, nil
}

// AddUser creates an admin account. There is no public signup; accounts
// come from the adduser command.
func (s *System) AddUser(name, pass string) (*User, error) {
	if name == "" || len(pass) < 8 {
		return nil, fmt.Errorf("%w: need a name and a password of 8 or more characters", ErrBadCredentials)
	}
	if _, err := s.boltdbFetch("password", name); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// generate new salt and hash with pw
	saltAndHash := make([]byte, 64)
	if _, err := rand.Read(saltAndHash[:32]); err != nil {
		return nil, err
	}
	copy(saltAndHash[32:], hasher(pass, saltAndHash[:32]))

	u := &User{ID: name, Name: name, Created: time.Now().UTC()}
	b, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	if err := s.boltdbUpdate("password", name, saltAndHash); err != nil {
		return nil, err
	}
	if err := s.boltdbUpdate("userinfo", name, b); err != nil {
		return nil, err
	}
	s.auditlog("added user %q", name)
	return u, nil
}

// newAuthkey stores a fresh session key for uid, replacing any previous one.
func (s *System) newAuthkey(uid string) (string, error) {
	authkeyb := make([]byte, 32)
	if _, err := rand.Read(authkeyb); err != nil {
		return "", err
	}
	if err := s.boltdbUpdate("authkeys", uid, authkeyb); err != nil {
		return "", err
	}
	return hex.EncodeToString(authkeyb), nil
}

// authkeyRevoke sets a random sessionkey, revoking any cookies in the wild
func (s *System) authkeyRevoke(uid string) error {
	_, err := s.newAuthkey(uid)
	return err
}

// authkeyCheck returns true if user's cookie sessionkey matches the single valid sessionkey in database
func (s *System) authkeyCheck(cookieinfo map[string]string) bool {
	authedKey, ok1 := cookieinfo["authkey"]
	authedUser, ok2 := cookieinfo["user"]
	if !ok1 || !ok2 {
		return false
	}
	authkeyb, err := s.boltdbFetch("authkeys", authedUser)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(authedKey)
	if err != nil {
		return false
	}
	return compareDigest(got, authkeyb)
}
