// Package backup keeps zstd compressed copies of the save file.
//
// A backup file is a zstd stream holding one JSON header line followed by the
// raw save file bytes.
package backup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const suffix = ".yml.zst"

type Meta struct {
	CreatedAt   string `json:"created_at"`
	DataVersion int    `json:"data_version"`
	Size        int    `json:"size"`
	SHA256      string `json:"sha256"`
}

// Write stores data as a new backup in dir and returns its path.
func Write(dir string, data []byte, dataVersion int, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	meta := Meta{
		CreatedAt:   now.UTC().Format(time.RFC3339Nano),
		DataVersion: dataVersion,
		Size:        len(data),
		SHA256:      hex.EncodeToString(sum[:]),
	}
	path := filepath.Join(dir, "save-"+now.UTC().Format("20060102T150405.000000000")+suffix)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", err
	}
	err = writeBody(enc, meta, data)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return path, f.Close()
}

func writeBody(w io.Writer, meta Meta, data []byte) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	hb, _ := json.Marshal(meta)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if _, err := bw.Write(data); err != nil {
		return err
	}
	return bw.Flush()
}

// Read returns the header and the save file bytes of a backup. The checksum is verified.
func Read(path string) (Meta, []byte, error) {
	var meta Meta
	f, err := os.Open(path)
	if err != nil {
		return meta, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return meta, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	header, err := br.ReadBytes('\n')
	if err != nil {
		return meta, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(header, &meta); err != nil {
		return meta, nil, fmt.Errorf("decode header: %w", err)
	}
	data, err := io.ReadAll(br)
	if err != nil {
		return meta, nil, err
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != meta.SHA256 {
		return meta, nil, fmt.Errorf("checksum mismatch: header %s, data %s", meta.SHA256, got)
	}
	return meta, data, nil
}

// List returns the backups in dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	// Names embed a sortable UTC timestamp.
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Prune removes all but the newest keep backups.
func Prune(dir string, keep int) (int, error) {
	paths, err := List(dir)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for i := keep; i < len(paths); i++ {
		if err := os.Remove(paths[i]); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
