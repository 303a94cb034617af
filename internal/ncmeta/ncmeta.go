package ncmeta

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrUnsupportedFormat is returned for files that are not NetCDF
// classic (CDF-1 or CDF-2). NetCDF-4/HDF5 containers are not parsed;
// callers fall back to the requested variable name.
var ErrUnsupportedFormat = errors.New("ncmeta: not a NetCDF classic file")

// coordinateNames are dimension/coordinate variables excluded when
// resolving the data variable of an artifact.
var coordinateNames = map[string]bool{
	"time":      true,
	"latitude":  true,
	"longitude": true,
	"lat":       true,
	"lon":       true,
	"level":     true,
}

// ResolveCode returns the authoritative variable code of a downloaded
// artifact: the sole data variable left after excluding coordinate
// names. If several remain the first, in file order, is chosen and the
// ambiguity logged. On unreadable or unsupported files the requested
// API variable name is returned unchanged.
func ResolveCode(logger *slog.Logger, path, requested string) string {
	if logger == nil {
		logger = slog.Default()
	}

	names, err := VariableNames(path)
	if err != nil {
		logger.Warn("could not inspect artifact, keeping requested variable name",
			"artifact", path, "error", err)
		return requested
	}

	var dataVars []string
	for _, name := range names {
		if !coordinateNames[name] {
			dataVars = append(dataVars, name)
		}
	}

	switch len(dataVars) {
	case 0:
		logger.Warn("no data variable found in artifact, keeping requested variable name",
			"artifact", path)
		return requested
	case 1:
		return dataVars[0]
	default:
		logger.Info("multiple data variables found in artifact, using first",
			"artifact", path, "variables", dataVars, "chosen", dataVars[0])
		return dataVars[0]
	}
}

// VariableNames enumerates the variable names of a NetCDF classic file
// by walking its header. Only the header is read.
func VariableNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readHeader(bufio.NewReader(f))
}

// Header layout (classic format):
//
//	magic numrecs dim_list gatt_list var_list
//
// Lists are a tag word, an element count, then the elements. Offsets
// at the tail of each variable entry are 4 bytes in CDF-1 and 8 bytes
// in CDF-2.
const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C
)

func readHeader(r *bufio.Reader) ([]string, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic[0] != 'C' || magic[1] != 'D' || magic[2] != 'F' {
		return nil, ErrUnsupportedFormat
	}
	version := magic[3]
	if version != 1 && version != 2 {
		return nil, ErrUnsupportedFormat
	}

	// numrecs
	if _, err := readU32(r); err != nil {
		return nil, err
	}

	// dim_list: only names and sizes, both skippable
	if err := readList(r, tagDimension, func() error {
		if err := skipName(r); err != nil {
			return err
		}
		_, err := readU32(r) // dim length
		return err
	}); err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}

	// gatt_list
	if err := readList(r, tagAttribute, func() error {
		return skipAttribute(r)
	}); err != nil {
		return nil, fmt.Errorf("global attributes: %w", err)
	}

	// var_list
	var names []string
	if err := readList(r, tagVariable, func() error {
		name, err := readName(r)
		if err != nil {
			return err
		}
		names = append(names, name)

		ndims, err := readU32(r)
		if err != nil {
			return err
		}
		if err := skip(r, int64(ndims)*4); err != nil {
			return err
		}

		if err := readList(r, tagAttribute, func() error {
			return skipAttribute(r)
		}); err != nil {
			return err
		}

		// nc_type, vsize
		if err := skip(r, 8); err != nil {
			return err
		}
		// begin offset
		beginLen := int64(4)
		if version == 2 {
			beginLen = 8
		}
		return skip(r, beginLen)
	}); err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}

	return names, nil
}

// readList reads a tagged list header and applies readElem per element.
// An absent list is encoded as two zero words.
func readList(r *bufio.Reader, tag uint32, readElem func() error) error {
	gotTag, err := readU32(r)
	if err != nil {
		return err
	}
	count, err := readU32(r)
	if err != nil {
		return err
	}

	if gotTag == 0 && count == 0 {
		return nil
	}
	if gotTag != tag {
		return fmt.Errorf("unexpected list tag 0x%02X", gotTag)
	}

	for i := uint32(0); i < count; i++ {
		if err := readElem(); err != nil {
			return err
		}
	}
	return nil
}

func skipAttribute(r *bufio.Reader) error {
	if err := skipName(r); err != nil {
		return err
	}
	ncType, err := readU32(r)
	if err != nil {
		return err
	}
	nelems, err := readU32(r)
	if err != nil {
		return err
	}
	size, ok := typeSizes[ncType]
	if !ok {
		return fmt.Errorf("unknown attribute type %d", ncType)
	}
	return skip(r, pad4(int64(nelems)*size))
}

var typeSizes = map[uint32]int64{
	1: 1, // NC_BYTE
	2: 1, // NC_CHAR
	3: 2, // NC_SHORT
	4: 4, // NC_INT
	5: 4, // NC_FLOAT
	6: 8, // NC_DOUBLE
}

func readName(r *bufio.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, pad4(int64(n)))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func skipName(r *bufio.Reader) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	return skip(r, pad4(int64(n)))
}

func readU32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func skip(r *bufio.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

func pad4(n int64) int64 {
	if rem := n % 4; rem != 0 {
		return n + 4 - rem
	}
	return n
}
