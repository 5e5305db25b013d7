package vector

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// An index persists as two files next to each other:
//
//	<path>.vec       binary slot data: magic, version, dim, slot count,
//	                 then little-endian float32 vectors in slot order
//	<path>.map.json  both mapping directions (id → slot, slot → id)
//
// Tombstoned slots are written too; the mapping file decides which ids
// are live. Writes go to temp files first and are renamed into place so a
// crash mid-save leaves the previous index intact.

const (
	vecMagic   = "CGVX"
	vecVersion = uint32(1)
)

type mapFile struct {
	IDToSlot map[string]int `json:"id_to_slot"`
	SlotToID map[int]string `json:"slot_to_id"`
}

// Save serializes the index (slots plus both mapping directions) to
// <path>.vec and <path>.map.json. Failures propagate: a lost index file
// means silent data loss on the next restart.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := writeAtomic(path+".vec", ix.encodeVectors()); err != nil {
		return fmt.Errorf("failed to write vector file: %w", err)
	}

	mapData, err := json.Marshal(mapFile{
		IDToSlot: ix.idToSlot,
		SlotToID: ix.slotToID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %w", err)
	}
	if err := writeAtomic(path+".map.json", mapData); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}

	return nil
}

// Load reads an index previously written by Save. Missing or corrupt
// files return ErrNotFound so callers can fall back to an empty index;
// Load never partially populates the receiver on failure.
func (ix *Index) Load(path string) error {
	vecData, err := os.ReadFile(path + ".vec")
	if err != nil {
		return ErrNotFound
	}
	mapData, err := os.ReadFile(path + ".map.json")
	if err != nil {
		return ErrNotFound
	}

	dim, slots, err := decodeVectors(vecData)
	if err != nil {
		return ErrNotFound
	}

	var mapping mapFile
	if err := json.Unmarshal(mapData, &mapping); err != nil {
		return ErrNotFound
	}
	if mapping.IDToSlot == nil {
		mapping.IDToSlot = make(map[string]int)
	}
	if mapping.SlotToID == nil {
		mapping.SlotToID = make(map[int]string)
	}
	for _, slot := range mapping.IDToSlot {
		if slot < 0 || slot >= len(slots) {
			return ErrNotFound
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.dim = dim
	ix.slots = slots
	ix.idToSlot = mapping.IDToSlot
	ix.slotToID = mapping.SlotToID
	return nil
}

// encodeVectors serializes all slots. Caller holds at least a read lock.
func (ix *Index) encodeVectors() []byte {
	buf := make([]byte, 0, 16+4*ix.dim*len(ix.slots))
	buf = append(buf, vecMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, vecVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ix.dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.slots)))
	for _, slot := range ix.slots {
		for _, v := range slot {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}

func decodeVectors(data []byte) (int, [][]float32, error) {
	if len(data) < 16 || string(data[:4]) != vecMagic {
		return 0, nil, errors.New("bad vector file header")
	}
	version := binary.LittleEndian.Uint32(data[4:])
	if version != vecVersion {
		return 0, nil, fmt.Errorf("unsupported vector file version %d", version)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:]))
	count := int(binary.LittleEndian.Uint32(data[12:]))

	// Validate against the payload that is actually present rather than
	// computing dim*count, which a crafted header can overflow.
	payload := len(data) - 16
	if payload%4 != 0 {
		return 0, nil, errors.New("truncated vector file")
	}
	elements := payload / 4
	if dim == 0 {
		// Only a never-written-to index has no dimension; it has no slots.
		if count != 0 || elements != 0 {
			return 0, nil, errors.New("truncated vector file")
		}
	} else if elements/dim != count || elements%dim != 0 {
		return 0, nil, errors.New("truncated vector file")
	}

	slots := make([][]float32, count)
	off := 16
	for i := range slots {
		slot := make([]float32, dim)
		for j := range slot {
			slot[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		slots[i] = slot
	}
	return dim, slots, nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
