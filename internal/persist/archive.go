package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Iris-proj/iris-vm/internal/code"
)

// ArchiveMagic is the 4-byte signature of an archive file, written
// little-endian so the on-disk bytes read "IRIA".
const ArchiveMagic uint32 = 0x41495249

// Entry is one named function inside an archive, per spec.md §4.6/§6:
// "an archive is a stored-only (uncompressed) container of such blobs,
// addressable by name." Entries are unordered; WriteArchive preserves
// whatever order the caller passes and ReadArchive returns them in
// on-disk order, but no operation in this package depends on that order
// (R2 requires only that the same multiset of functions comes back).
type Entry struct {
	Name string
	Fn   *code.Function
}

// WriteArchive writes entries as a stored (uncompressed) container:
// magic, version, entry count, then for each entry a name and a nested
// single-function blob identical to what WriteFunction alone would
// produce.
func WriteArchive(w io.Writer, entries []Entry) error {
	if err := binary.Write(w, binary.LittleEndian, ArchiveMagic); err != nil {
		return fmt.Errorf("persist: write archive magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return fmt.Errorf("persist: write archive version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		return fmt.Errorf("persist: write archive count: %w", err)
	}
	for _, e := range entries {
		if err := writeString(w, e.Name); err != nil {
			return fmt.Errorf("persist: write entry name %q: %w", e.Name, err)
		}
		var blob bytes.Buffer
		if err := WriteFunction(&blob, e.Fn); err != nil {
			return fmt.Errorf("persist: encode entry %q: %w", e.Name, err)
		}
		if err := writeBytes(w, blob.Bytes()); err != nil {
			return fmt.Errorf("persist: write entry %q: %w", e.Name, err)
		}
	}
	return nil
}

// ReadArchive reads back the entries written by WriteArchive.
func ReadArchive(r io.Reader) ([]Entry, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("persist: read archive magic: %w", err)
	}
	if magic != ArchiveMagic {
		return nil, ErrBadMagic
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("persist: read archive version: %w", err)
	}
	if version > FormatVersion {
		return nil, ErrUnsupportedVersion
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("persist: read archive count: %w", err)
	}
	entries := make([]Entry, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("persist: read entry %d name: %w", i, err)
		}
		blobBytes, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("persist: read entry %q: %w", name, err)
		}
		fn, err := ReadFunction(bytes.NewReader(blobBytes))
		if err != nil {
			return nil, fmt.Errorf("persist: decode entry %q: %w", name, err)
		}
		entries[i] = Entry{Name: name, Fn: fn}
	}
	return entries, nil
}

// ArchiveMap is a convenience wrapper over ReadArchive returning
// entries keyed by name, the "addressable by name" access pattern
// spec.md §4.6 describes for an archive's entries.
func ArchiveMap(r io.Reader) (map[string]*code.Function, error) {
	entries, err := ReadArchive(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*code.Function, len(entries))
	for _, e := range entries {
		m[e.Name] = e.Fn
	}
	return m, nil
}
