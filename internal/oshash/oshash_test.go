package oshash

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	data := make([]byte, 200*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}

	a, err := SumReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("SumReader() error = %v", err)
	}
	b, err := SumReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("SumReader() error = %v", err)
	}
	if a != b {
		t.Errorf("hash not deterministic: %s != %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16 hex chars", len(a))
	}
}

func TestSumDependsOnContentAndSize(t *testing.T) {
	base := make([]byte, 128*1024)
	h1, err := SumReader(bytes.NewReader(base), int64(len(base)))
	if err != nil {
		t.Fatal(err)
	}

	changed := make([]byte, 128*1024)
	copy(changed, base)
	changed[0] = 0xFF
	h2, err := SumReader(bytes.NewReader(changed), int64(len(changed)))
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("hash did not change when leading bytes changed")
	}

	longer := make([]byte, 129*1024)
	h3, err := SumReader(bytes.NewReader(longer), int64(len(longer)))
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h3 {
		t.Error("hash did not change when size changed")
	}
}

func TestSumKnownValue(t *testing.T) {
	// All-zero 64 KiB file: chunk sums are zero, so the hash is the size.
	data := make([]byte, 64*1024)
	got, err := SumReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if got != "0000000000010000" {
		t.Errorf("SumReader() = %s, want 0000000000010000", got)
	}
}

func TestSumTooSmall(t *testing.T) {
	if _, err := SumReader(bytes.NewReader([]byte("tiny")), 4); !errors.Is(err, ErrFileTooSmall) {
		t.Errorf("error = %v, want ErrFileTooSmall", err)
	}
}

func TestSumFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mkv")
	data := make([]byte, 70*1024)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := Sum(path)
	if err != nil {
		t.Fatalf("Sum() error = %v", err)
	}
	fromReader, err := SumReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != fromReader {
		t.Errorf("Sum() = %s, SumReader() = %s", fromFile, fromReader)
	}
}
