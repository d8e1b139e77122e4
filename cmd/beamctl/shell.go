package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xtxerr/beamstore/internal/storage"
	"github.com/xtxerr/beamstore/internal/storage/container"
	"github.com/xtxerr/beamstore/internal/storage/meta"
	"github.com/xtxerr/beamstore/internal/storage/partition"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

type shell struct {
	engine *storage.Engine
}

func (s *shell) run(args []string) error {
	switch args[0] {
	case "list":
		return s.list()
	case "info":
		if len(args) != 2 {
			return fmt.Errorf("usage: info <file>")
		}
		return s.info(args[1])
	case "read":
		if len(args) < 4 || len(args) > 5 {
			return fmt.Errorf("usage: read <format> <object-id> <n-samples> [offset]")
		}
		return s.read(args[1], args[2], args[3], args[4:])
	case "summary":
		return s.summary()
	case "export":
		if len(args) != 3 {
			return fmt.Errorf("usage: export <format> <object-id>")
		}
		return s.export(args[1], args[2])
	case "sql":
		if len(args) < 2 {
			return fmt.Errorf("usage: sql <query>")
		}
		return s.sql(strings.Join(args[1:], " "))
	case "help":
		s.help()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'help')", args[0])
	}
}

func (s *shell) runScript(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.run(strings.Fields(line)); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func (s *shell) help() {
	fmt.Print(`commands:
  list                      list batches and partitions in the data directory
  info <file>               show a container's metadata and datasets
  read <format> <object> <n> [offset]
                            read a sample window of the most recent batch
  summary                   show streaming power summaries for this session
  export <format> <object>  export the object's most recent batch to Parquet
  sql <query>               run SQL over the export directory's Parquet files
  exit                      leave the shell
`)
}

func (s *shell) list() error {
	dir := s.engine.Config().DataDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type line struct {
		info partition.Info
		size int64
	}
	var lines []line
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, ok := partition.ParseFilename(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		lines = append(lines, line{info: info, size: fi.Size()})
	}
	if len(lines) == 0 {
		fmt.Println("no containers in", dir)
		return nil
	}

	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i].info, lines[j].info
		if a.Format != b.Format {
			return a.Format < b.Format
		}
		if a.ObjectID != b.ObjectID {
			return a.ObjectID < b.ObjectID
		}
		if a.Batch.Key() != b.Batch.Key() {
			return a.Batch.Key() < b.Batch.Key()
		}
		return a.Partition < b.Partition
	})

	fmt.Printf("%-12s %-8s %-16s %-5s %s\n", "FORMAT", "OBJECT", "BATCH", "PART", "SIZE")
	for _, l := range lines {
		fmt.Printf("%-12s %-8d %-16s %-5d %d\n",
			l.info.Format, l.info.ObjectID, l.info.Batch, l.info.Partition, l.size)
	}
	return nil
}

func (s *shell) info(path string) error {
	if !filepath.IsAbs(path) && !strings.Contains(path, string(os.PathSeparator)) {
		path = filepath.Join(s.engine.Config().DataDir, path)
	}

	c, err := container.Open(path, container.ModeRead, container.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	payload, err := c.ReadMetadata()
	if err == nil {
		fields, derr := meta.Decode(payload)
		if derr != nil {
			return derr
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("metadata:")
		for _, name := range names {
			fmt.Printf("  %-16s %s\n", name, formatValue(fields[name]))
		}
	} else {
		fmt.Println("metadata: (none)")
	}

	fmt.Println("datasets:")
	for _, name := range c.Datasets() {
		ds, err := c.Dataset(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-28s %-9s frame %v, %d samples\n",
			name, ds.DataType(), ds.FrameDims(), ds.Samples())
	}
	return nil
}

func formatValue(v meta.Value) string {
	switch v.Kind {
	case meta.KindFloat:
		return strconv.FormatFloat(v.F, 'f', -1, 64)
	case meta.KindInt:
		return strconv.FormatInt(v.I, 10)
	default:
		return v.S
	}
}

func (s *shell) summary() error {
	sum := s.engine.Summary()
	if sum == nil {
		fmt.Println("summaries are disabled")
		return nil
	}
	results := sum.Results()
	if len(results) == 0 {
		fmt.Println("no writes observed in this session")
		return nil
	}
	fmt.Printf("%-12s %-8s %-10s %-12s %-12s %-12s\n", "FORMAT", "OBJECT", "COUNT", "AVG", "P95", "MAX")
	for _, r := range results {
		p95 := "-"
		if r.HasPercentiles {
			p95 = fmt.Sprintf("%.4g", r.P95)
		}
		fmt.Printf("%-12s %-8d %-10d %-12.4g %-12s %-12.4g\n",
			r.Format, r.ObjectID, r.Count, r.Avg, p95, r.Max)
	}
	return nil
}

func (s *shell) export(formatName, objectArg string) error {
	f, ok := types.ParseFormatPrefix(formatName)
	if !ok {
		return fmt.Errorf("unknown format %q", formatName)
	}
	objectID, err := strconv.Atoi(objectArg)
	if err != nil {
		return fmt.Errorf("object id %q: %w", objectArg, err)
	}

	// The mode component is part of the filename; probe each mode until
	// the object's batch turns up.
	modes := []types.Mode{types.ModeNone, types.ModeBurst, types.ModeContinuous, types.ModeIntegrated}
	var lastErr error
	for _, mode := range modes {
		paths, err := s.engine.ExportBatch(context.Background(), f, mode, objectID, nil)
		if err != nil {
			lastErr = err
			continue
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	}
	return lastErr
}

func (s *shell) sql(query string) error {
	q, err := s.engine.Query()
	if err != nil {
		return err
	}
	rows, err := q.ExecuteSQL(context.Background(), query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	fmt.Println(strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = fmt.Sprint(row[col])
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
