package vector

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Descriptor is what remote backends write in place of the index file: the
// data lives in the server, the descriptor says where.
type Descriptor struct {
	Backend    string            `yaml:"backend"`
	Algorithm  string            `yaml:"algorithm"`
	ValueType  string            `yaml:"value_type"`
	Dimensions int               `yaml:"dimensions"`
	Params     map[string]string `yaml:"params,omitempty"`
	Count      int64             `yaml:"count"`

	Qdrant *QdrantLocation `yaml:"qdrant,omitempty"`
	Neo4j  *Neo4jLocation  `yaml:"neo4j,omitempty"`
}

// QdrantLocation identifies a Qdrant collection.
type QdrantLocation struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// Neo4jLocation identifies a Neo4j vector index. Credentials are never written.
type Neo4jLocation struct {
	URI       string `yaml:"uri"`
	Database  string `yaml:"database,omitempty"`
	Label     string `yaml:"label"`
	IndexName string `yaml:"index_name"`
}

// WriteDescriptor atomically writes d to path.
func WriteDescriptor(path string, d *Descriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// ReadDescriptor reads a descriptor and checks it names the expected backend.
func ReadDescriptor(path, backend string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if d.Backend != backend {
		return nil, fmt.Errorf("descriptor is for backend %q, not %q", d.Backend, backend)
	}
	return &d, nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
