// Package registry stores versioned PMML documents in a BoltDB database.
//
// Every Add creates a new version of the named entry unless the document is
// identical to the latest one. Rollback drops the latest version, so the
// previous document becomes current again.
package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"otpmml/internal/common"
	"otpmml/internal/metrics"
	"otpmml/internal/pmml"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	versionsBucket  = "versions"  // ModelVersion records as JSON
	documentsBucket = "documents" // PMML documents
)

// Model kinds reported in ModelVersion.Kinds.
const (
	KindNeuralNetwork   = "NeuralNetwork"
	KindRegressionModel = "RegressionModel"
)

var (
	ErrNotFound    = errors.New("registry entry not found")
	ErrInvalidName = errors.New("invalid registry entry name")
	ErrNoModel     = errors.New("document holds no supported model")
	ErrLastVersion = errors.New("no previous version available for rollback")
)

// ModelVersion describes one stored document.
type ModelVersion struct {
	Name    string    `json:"name"`
	Version int       `json:"version"`
	Kinds   []string  `json:"kinds"`
	Models  []string  `json:"models"`
	SHA256  string    `json:"sha256"`
	Size    int       `json:"size"`
	AddedAt time.Time `json:"added_at"`
}

// MetricsTracker counts registry operations.
type MetricsTracker interface {
	RegistryOperation(op string) metrics.MetricsCounter
}

// Registry is a BoltDB backed store of PMML documents.
type Registry struct {
	db      *bbolt.DB
	metrics MetricsTracker
	now     func() time.Time
}

// New opens (or creates) the registry database under dataPath.
func New(dataPath string) (*Registry, error) {
	dbPath := filepath.Join(dataPath, common.RegistryFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(versionsBucket)); err != nil {
			return fmt.Errorf("create versions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(documentsBucket)); err != nil {
			return fmt.Errorf("create documents bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Registry{db: db, now: time.Now}, nil
}

// SetMetrics installs a tracker for registry operations.
func (r *Registry) SetMetrics(m MetricsTracker) { r.metrics = m }

// Close closes the database.
func (r *Registry) Close() error {
	if r.db != nil {
		err := r.db.Close()
		r.db = nil
		return err
	}
	return nil
}

func (r *Registry) track(op string) {
	if r.metrics != nil {
		r.metrics.RegistryOperation(op).Inc()
	}
}

func key(name string, version int) []byte {
	return []byte(fmt.Sprintf("%s/%08d", name, version))
}

func prefix(name string) []byte {
	return []byte(name + "/")
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("'%s': %w", name, ErrInvalidName)
	}
	return nil
}

// Add stores document as a new version of name. The document must parse as
// PMML and hold at least one neural network or regression model. When it
// is byte-identical to the latest version, that version is returned and
// nothing is written.
func (r *Registry) Add(name string, document []byte) (ModelVersion, error) {
	if err := checkName(name); err != nil {
		return ModelVersion{}, err
	}
	doc, err := pmml.Parse(bytes.NewReader(document))
	if err != nil {
		return ModelVersion{}, fmt.Errorf("parse %s: %w", name, err)
	}

	mv := ModelVersion{Name: name, Size: len(document)}
	if n := doc.NumberOfNeuralNetworks(); n > 0 {
		mv.Kinds = append(mv.Kinds, KindNeuralNetwork)
		mv.Models = append(mv.Models, doc.NeuralNetworkModelNames()...)
	}
	if n := doc.NumberOfRegressionModels(); n > 0 {
		mv.Kinds = append(mv.Kinds, KindRegressionModel)
		mv.Models = append(mv.Models, doc.RegressionModelNames()...)
	}
	if len(mv.Kinds) == 0 {
		return ModelVersion{}, fmt.Errorf("%s: %w", name, ErrNoModel)
	}
	sum := sha256.Sum256(document)
	mv.SHA256 = hex.EncodeToString(sum[:])

	unchanged := false
	err = r.db.Update(func(tx *bbolt.Tx) error {
		vb := tx.Bucket([]byte(versionsBucket))
		latest, ok, err := lastVersion(vb, name)
		if err != nil {
			return err
		}
		if ok && latest.SHA256 == mv.SHA256 {
			mv = latest
			unchanged = true
			return nil
		}
		mv.Version = 1
		if ok {
			mv.Version = latest.Version + 1
		}
		mv.AddedAt = r.now().UTC()

		data, err := json.Marshal(mv)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		if err := vb.Put(key(name, mv.Version), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(documentsBucket)).Put(key(name, mv.Version), document)
	})
	if err != nil {
		return ModelVersion{}, err
	}
	if unchanged {
		log.Debug().Str("name", name).Int("version", mv.Version).Msg("PMML document unchanged, keeping latest version")
		return mv, nil
	}

	r.track("add")
	log.Info().Str("name", name).Int("version", mv.Version).Strs("models", mv.Models).Msg("Registered PMML document")
	return mv, nil
}

// lastVersion returns the latest version of name in the versions bucket.
func lastVersion(b *bbolt.Bucket, name string) (ModelVersion, bool, error) {
	var (
		mv    ModelVersion
		found []byte
	)
	c := b.Cursor()
	p := prefix(name)
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		found = v
	}
	if found == nil {
		return mv, false, nil
	}
	if err := json.Unmarshal(found, &mv); err != nil {
		return mv, false, fmt.Errorf("unmarshal version of %s: %w", name, err)
	}
	return mv, true, nil
}

// Get returns the latest version of name and its document.
func (r *Registry) Get(name string) (ModelVersion, []byte, error) {
	var (
		mv  ModelVersion
		doc []byte
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		latest, ok, err := lastVersion(tx.Bucket([]byte(versionsBucket)), name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("'%s': %w", name, ErrNotFound)
		}
		mv = latest
		doc = bytes.Clone(tx.Bucket([]byte(documentsBucket)).Get(key(name, mv.Version)))
		return nil
	})
	return mv, doc, err
}

// GetVersion returns the given version of name and its document.
func (r *Registry) GetVersion(name string, version int) (ModelVersion, []byte, error) {
	var (
		mv  ModelVersion
		doc []byte
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(versionsBucket)).Get(key(name, version))
		if data == nil {
			return fmt.Errorf("'%s' version %d: %w", name, version, ErrNotFound)
		}
		if err := json.Unmarshal(data, &mv); err != nil {
			return fmt.Errorf("unmarshal version: %w", err)
		}
		doc = bytes.Clone(tx.Bucket([]byte(documentsBucket)).Get(key(name, version)))
		return nil
	})
	return mv, doc, err
}

// Versions returns every version of name, oldest first.
func (r *Registry) Versions(name string) ([]ModelVersion, error) {
	var versions []ModelVersion
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(versionsBucket)).Cursor()
		p := prefix(name)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			var mv ModelVersion
			if err := json.Unmarshal(v, &mv); err != nil {
				log.Warn().Str("key", string(k)).Err(err).Msg("Skipping malformed registry record")
				continue
			}
			versions = append(versions, mv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("'%s': %w", name, ErrNotFound)
	}
	return versions, nil
}

// List returns the latest version of every entry, sorted by name.
func (r *Registry) List() ([]ModelVersion, error) {
	latest := make(map[string]ModelVersion)
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(versionsBucket)).ForEach(func(k, v []byte) error {
			var mv ModelVersion
			if err := json.Unmarshal(v, &mv); err != nil {
				log.Warn().Str("key", string(k)).Err(err).Msg("Skipping malformed registry record")
				return nil
			}
			if cur, ok := latest[mv.Name]; !ok || mv.Version > cur.Version {
				latest[mv.Name] = mv
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]ModelVersion, 0, len(latest))
	for _, mv := range latest {
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Rollback removes the latest version of name and returns the version that
// is now current.
func (r *Registry) Rollback(name string) (ModelVersion, error) {
	var current ModelVersion
	err := r.db.Update(func(tx *bbolt.Tx) error {
		vb := tx.Bucket([]byte(versionsBucket))
		c := vb.Cursor()
		p := prefix(name)
		var keys [][]byte
		var values [][]byte
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			keys = append(keys, bytes.Clone(k))
			values = append(values, v)
		}
		switch len(keys) {
		case 0:
			return fmt.Errorf("'%s': %w", name, ErrNotFound)
		case 1:
			return fmt.Errorf("'%s': %w", name, ErrLastVersion)
		}
		if err := json.Unmarshal(values[len(values)-2], &current); err != nil {
			return fmt.Errorf("unmarshal version: %w", err)
		}
		last := keys[len(keys)-1]
		if err := vb.Delete(last); err != nil {
			return err
		}
		return tx.Bucket([]byte(documentsBucket)).Delete(last)
	})
	if err != nil {
		return ModelVersion{}, err
	}

	r.track("rollback")
	log.Info().Str("name", name).Int("version", current.Version).Msg("Rolled back PMML document")
	return current, nil
}

// Delete removes every version of name.
func (r *Registry) Delete(name string) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		vb := tx.Bucket([]byte(versionsBucket))
		docs := tx.Bucket([]byte(documentsBucket))
		c := vb.Cursor()
		p := prefix(name)
		var keys [][]byte
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, bytes.Clone(k))
		}
		if len(keys) == 0 {
			return fmt.Errorf("'%s': %w", name, ErrNotFound)
		}
		for _, k := range keys {
			if err := vb.Delete(k); err != nil {
				return err
			}
			if err := docs.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.track("delete")
	log.Info().Str("name", name).Msg("Deleted PMML document")
	return nil
}
