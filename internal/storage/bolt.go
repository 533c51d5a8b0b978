package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	logx "homebot/pkg/logx"
)

var schedulesBucket = []byte("schedules")

// boltRecord mirrors the schedules table columns.
type boltRecord struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Notes     string `json:"notes"`
	WhenTS    int64  `json:"when_ts"`
	Delivered bool   `json:"delivered"`
}

func (r boltRecord) schedule() Schedule {
	return Schedule{ID: r.ID, UserID: r.UserID, Title: r.Title, Notes: r.Notes, When: fromTS(r.WhenTS), Delivered: r.Delivered}
}

type boltStore struct {
	db  *bolt.DB
	log logx.Logger
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./homebot.bolt"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(schedulesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("bolt store opened", logx.String("path", path))
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func (s *boltStore) CreateSchedule(_ context.Context, in NewSchedule) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(schedulesBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		raw, err := json.Marshal(boltRecord{ID: id, UserID: in.UserID, Title: in.Title, Notes: in.Notes, WhenTS: whenTS(in.When)})
		if err != nil {
			return err
		}
		return b.Put(idKey(id), raw)
	})
	if err != nil {
		return 0, opErr("create", 0, err)
	}
	return id, nil
}

func (s *boltStore) GetSchedule(_ context.Context, id int64) (Schedule, bool, error) {
	var (
		rec   boltRecord
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(schedulesBucket).Get(idKey(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return Schedule{}, false, opErr("get", id, err)
	}
	return rec.schedule(), found, nil
}

var errNotFound = errors.New("not found")

func (s *boltStore) MarkDelivered(_ context.Context, id int64) (bool, error) {
	changed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(schedulesBucket)
		raw := b.Get(idKey(id))
		if raw == nil {
			return errNotFound
		}
		var rec boltRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if rec.Delivered {
			return nil
		}
		rec.Delivered = true
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		changed = true
		return b.Put(idKey(id), out)
	})
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, opErr("mark_delivered", id, err)
	}
	return changed, nil
}

// scan visits undelivered records matching keep, ordered by (when_ts, id).
func (s *boltStore) scan(keep func(boltRecord) bool) ([]boltRecord, error) {
	var out []boltRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(schedulesBucket).ForEach(func(_, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.Delivered && keep(rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WhenTS != out[j].WhenTS {
			return out[i].WhenTS < out[j].WhenTS
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (s *boltStore) ListUpcoming(_ context.Context, userID string, limit int) ([]Schedule, error) {
	recs, err := s.scan(func(r boltRecord) bool { return r.UserID == userID })
	if err != nil {
		return nil, opErr("list_upcoming", 0, err)
	}
	if n := normLimit(limit); len(recs) > n {
		recs = recs[:n]
	}
	out := make([]Schedule, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.schedule())
	}
	return out, nil
}

func (s *boltStore) ListDueUndelivered(_ context.Context, now time.Time) ([]int64, error) {
	cutoff := whenTS(now)
	recs, err := s.scan(func(r boltRecord) bool { return r.WhenTS <= cutoff })
	if err != nil {
		return nil, opErr("list_due", 0, err)
	}
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *boltStore) ListUndelivered(_ context.Context) ([]Schedule, error) {
	recs, err := s.scan(func(boltRecord) bool { return true })
	if err != nil {
		return nil, opErr("list_undelivered", 0, err)
	}
	out := make([]Schedule, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.schedule())
	}
	return out, nil
}
