package datalake

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WriteCombinedExport writes all rows of a run into the processed partition.
// Zero rows produce no file and an empty path. The column order is the sorted
// key set of the first row; callers keep rows homogeneous.
func (s *Store) WriteCombinedExport(date string, rows []map[string]any) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}

	dir := s.ProcessedPartitionDir(date)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create processed partition: %w", err)
	}

	header := make([]string, 0, len(rows[0]))
	for key := range rows[0] {
		header = append(header, key)
	}
	sort.Strings(header)

	path := filepath.Join(dir, s.entity+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write export header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range rows {
		for i, key := range header {
			record[i] = formatCell(row[key])
		}
		if err := w.Write(record); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write export row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("flush export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	return path, nil
}

// ListPartition is PartitionFiles bound to the store.
func (s *Store) ListPartition(dir string, limit int) ([]string, error) {
	return PartitionFiles(dir, limit)
}

// ReadPartitionFile is ReadRecords bound to the store.
func (s *Store) ReadPartitionFile(path string) ([]map[string]any, error) {
	return ReadRecords(path)
}

// PartitionFiles lists the JSON and CSV inputs of a partition directory in
// name order, skipping the manifest. limit <= 0 means no cap.
func PartitionFiles(dir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list partition: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == manifestName {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".csv":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

// ReadRecords parses a JSON (object or array of objects) or CSV file into
// generic records. Non-object JSON entries are skipped.
func ReadRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return readJSON(f)
	case ".csv":
		return readCSV(f)
	default:
		return nil, fmt.Errorf("unsupported partition file %s", filepath.Base(path))
	}
}

func readJSON(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	switch v := data.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		records := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				records = append(records, obj)
			}
		}
		return records, nil
	default:
		return nil, nil
	}
}

func readCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records []map[string]any
	for {
		line, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rec := make(map[string]any, len(header))
		for i, key := range header {
			if i < len(line) {
				rec[key] = line[i]
			} else {
				rec[key] = nil
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	default:
		return fmt.Sprint(val)
	}
}
