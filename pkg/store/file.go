package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	Gateways []GatewayRecord `yaml:"gateways"`
	Sensors  []Record        `yaml:"sensors"`
}

// FileStore keeps records in a single YAML document that is rewritten
// atomically on every change
type FileStore struct {
	path string
	mu   sync.Mutex
	doc  fileDocument
}

// OpenFile loads the document at path, a missing file is an empty store
func OpenFile(path string) (*FileStore, error) {
	obj := &FileStore{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return obj, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if err := yaml.Unmarshal(data, &obj.doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal store file %s: %w", path, err)
	}
	return obj, nil
}

func (obj *FileStore) SaveSensor(_ context.Context, rec Record) error {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for i := range obj.doc.Sensors {
		if obj.doc.Sensors[i].ID == rec.ID {
			obj.doc.Sensors[i] = rec
			return obj.flush()
		}
	}
	obj.doc.Sensors = append(obj.doc.Sensors, rec)
	sort.Slice(obj.doc.Sensors, func(i, j int) bool { return obj.doc.Sensors[i].ID < obj.doc.Sensors[j].ID })
	return obj.flush()
}

func (obj *FileStore) DeleteSensor(_ context.Context, id string) error {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for i := range obj.doc.Sensors {
		if obj.doc.Sensors[i].ID == id {
			obj.doc.Sensors = append(obj.doc.Sensors[:i], obj.doc.Sensors[i+1:]...)
			return obj.flush()
		}
	}
	return fmt.Errorf("%w: sensor %s", ErrNotFound, id)
}

func (obj *FileStore) LoadSensors(_ context.Context) ([]Record, error) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	out := make([]Record, len(obj.doc.Sensors))
	copy(out, obj.doc.Sensors)
	return out, nil
}

func (obj *FileStore) SaveGateway(_ context.Context, rec GatewayRecord) error {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for i := range obj.doc.Gateways {
		if obj.doc.Gateways[i].ID == rec.ID {
			obj.doc.Gateways[i] = rec
			return obj.flush()
		}
	}
	obj.doc.Gateways = append(obj.doc.Gateways, rec)
	return obj.flush()
}

// Gateway returns the stored state of a gateway
func (obj *FileStore) Gateway(id string) (GatewayRecord, error) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for _, rec := range obj.doc.Gateways {
		if rec.ID == id {
			return rec, nil
		}
	}
	return GatewayRecord{}, fmt.Errorf("%w: gateway %s", ErrNotFound, id)
}

func (obj *FileStore) Close() error {
	return nil
}

// flush writes to a temporary file next to the target and renames it over
func (obj *FileStore) flush() error {
	data, err := yaml.Marshal(&obj.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(obj.path), filepath.Base(obj.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), obj.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
