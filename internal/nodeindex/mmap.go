package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

const (
	// Each node entry: lat (int32) + lon (int32) = 8 bytes
	// Using fixed-point: value * 1e7 to store as int32
	entrySize = 8
	// DefaultMaxNodeID covers the full planet ID space (80GB sparse address space)
	DefaultMaxNodeID = 10_000_000_000
)

// MmapIndex is a memory-mapped node coordinate index
// Node coordinates are stored at offset = nodeID * 8
// This gives O(1) lookup for any node ID
type MmapIndex struct {
	file      *os.File
	path      string
	data      mmap.MMap
	maxNodeID int64
}

// NewMmapIndex creates a new read-write mmap index backed by a sparse file
func NewMmapIndex(path string, maxNodeID int64) (*MmapIndex, error) {
	if maxNodeID <= 0 {
		maxNodeID = DefaultMaxNodeID
	}
	size := maxNodeID * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create mmap file: %w", err)
	}

	// Truncate to full size (creates sparse file on Linux)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate file: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MmapIndex{
		file:      f,
		path:      path,
		data:      data,
		maxNodeID: maxNodeID,
	}, nil
}

// Put stores a node's coordinates; IDs outside the index range are ignored
func (m *MmapIndex) Put(nodeID int64, lat, lon float64) {
	if nodeID < 0 || nodeID >= m.maxNodeID {
		return
	}

	offset := nodeID * entrySize
	binary.LittleEndian.PutUint32(m.data[offset:], uint32(int32(lat*1e7)))
	binary.LittleEndian.PutUint32(m.data[offset+4:], uint32(int32(lon*1e7)))
}

// Get retrieves a node's coordinates
// Returns (0, 0, false) if the node doesn't exist
func (m *MmapIndex) Get(nodeID int64) (lat, lon float64, ok bool) {
	if nodeID < 0 || nodeID >= m.maxNodeID {
		return 0, 0, false
	}

	offset := nodeID * entrySize
	latInt := int32(binary.LittleEndian.Uint32(m.data[offset:]))
	lonInt := int32(binary.LittleEndian.Uint32(m.data[offset+4:]))

	// (0,0) doubles as "never written"; no land-use polygon sits there
	if latInt == 0 && lonInt == 0 {
		return 0, 0, false
	}

	return float64(latInt) / 1e7, float64(lonInt) / 1e7, true
}

// Sync flushes changes to disk
func (m *MmapIndex) Sync() error {
	return m.data.Flush()
}

// Close unmaps the index and removes its backing file
func (m *MmapIndex) Close() error {
	unmapErr := m.data.Unmap()
	closeErr := m.file.Close()
	os.Remove(m.path)
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}
