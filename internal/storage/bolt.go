package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/logging"
	"github.com/fruitflybrain/neuroarch/internal/table"
)

const boltBucketPrefix = "snapshot:"

var (
	keyInfo  = []byte("info")
	keyNodes = []byte(kindNodes)
	keyEdges = []byte(kindEdges)
)

// BoltStore keeps snapshots in a single bbolt file, one bucket per snapshot.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltStore opens (or creates) the bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "create database directory %s", dir)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.StoreErrorf(err, "open bolt file %s", path)
	}
	return &BoltStore{
		db:     db,
		logger: logging.Component("storage").With("backend", BackendBolt),
	}, nil
}

func bucketName(name string) []byte {
	return []byte(boltBucketPrefix + name)
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save implements Store.
func (s *BoltStore) Save(ctx context.Context, name string, nodes, edges *table.Table) (*Info, error) {
	nodes, edges = orEmpty(nodes), orEmpty(edges)
	info, err := newInfo(name, nodes, edges)
	if err != nil {
		return nil, err
	}
	infoData, err := json.Marshal(info)
	if err != nil {
		return nil, errors.InternalErrorf("encode snapshot info: %v", err)
	}
	nodeData, err := encodeTable(nodes)
	if err != nil {
		return nil, err
	}
	edgeData, err := encodeTable(edges)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName(name)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketName(name))
		if err != nil {
			return err
		}
		if err := b.Put(keyInfo, infoData); err != nil {
			return err
		}
		if err := b.Put(keyNodes, nodeData); err != nil {
			return err
		}
		return b.Put(keyEdges, edgeData)
	})
	if err != nil {
		return nil, errors.StoreError(err, "save snapshot")
	}
	s.logger.Info("snapshot saved", "name", name, "id", info.ID, "nodes", info.NodeRows, "edges", info.EdgeRows)
	return info, nil
}

// Load implements Store.
func (s *BoltStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(name))
		if b == nil {
			return errors.NotFoundErrorf("snapshot %q not found", name)
		}
		if err := json.Unmarshal(b.Get(keyInfo), &snap.Info); err != nil {
			return errors.InternalErrorf("decode snapshot info: %v", err)
		}
		// Slices returned by Get are only valid inside the transaction.
		var err error
		if snap.Nodes, err = decodeTable(b.Get(keyNodes)); err != nil {
			return err
		}
		snap.Edges, err = decodeTable(b.Get(keyEdges))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// List implements Store.
func (s *BoltStore) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var infos []Info
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if !strings.HasPrefix(string(name), boltBucketPrefix) {
				return nil
			}
			var info Info
			if err := json.Unmarshal(b.Get(keyInfo), &info); err != nil {
				return errors.InternalErrorf("decode snapshot info: %v", err)
			}
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete implements Store.
func (s *BoltStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket(bucketName(name))
	})
	if err == bolt.ErrBucketNotFound {
		return errors.NotFoundErrorf("snapshot %q not found", name)
	}
	if err != nil {
		return errors.StoreError(err, "delete snapshot")
	}
	s.logger.Info("snapshot deleted", "name", name)
	return nil
}
