// Package oshash computes the OpenSubtitles content hash: a 64-bit checksum
// of the file size plus the little-endian uint64 sum of the first and last
// 64 KiB. Two files with the same hash are assumed to be the same encode,
// which is what makes hash-matched subtitles frame accurate.
package oshash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const chunkSize = 64 * 1024

// ErrFileTooSmall is returned for files smaller than one chunk; the hash is
// undefined for them.
var ErrFileTooSmall = errors.New("file too small for oshash")

// Sum computes the hash for the file at path.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return sum(f, info.Size())
}

// SumReader computes the hash for a seekable reader of known size.
func SumReader(r io.ReadSeeker, size int64) (string, error) {
	return sum(r, size)
}

func sum(r io.ReadSeeker, size int64) (string, error) {
	if size < chunkSize {
		return "", ErrFileTooSmall
	}

	hash := uint64(size)

	add, err := chunkSum(r)
	if err != nil {
		return "", err
	}
	hash += add

	if _, err := r.Seek(-chunkSize, io.SeekEnd); err != nil {
		return "", err
	}
	add, err = chunkSum(r)
	if err != nil {
		return "", err
	}
	hash += add

	return fmt.Sprintf("%016x", hash), nil
}

func chunkSum(r io.Reader) (uint64, error) {
	buf := make([]byte, chunkSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}

	var total uint64
	for i := 0; i < chunkSize; i += 8 {
		total += binary.LittleEndian.Uint64(buf[i : i+8])
	}
	return total, nil
}
