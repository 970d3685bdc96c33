package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// KeyField returns how map files are parsed for mapName. Colon-separated
// maps (passwd.*, group.*) are keyed on field index; anything else is a
// "key value" file keyed on its first whitespace-separated word.
func KeyField(mapName string) (field int, colon bool) {
	switch mapName {
	case "passwd.byname", "group.byname":
		return 0, true
	case "passwd.byuid", "group.bygid":
		return 2, true
	default:
		return 0, false
	}
}

// Load reads entries for mapName from r into st. Blank lines and lines
// starting with '#' are skipped. It returns the number of entries stored.
func Load(ctx context.Context, st Store, domain, mapName string, r io.Reader) (int, error) {
	if err := st.CreateMap(ctx, domain, mapName); err != nil {
		return 0, err
	}

	field, colon := KeyField(mapName)
	scanner := bufio.NewScanner(r)
	count := 0

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var key, value string
		if colon {
			fields := strings.Split(line, ":")
			if field >= len(fields) || fields[field] == "" {
				return count, fmt.Errorf("%s line %d: missing key field %d", mapName, lineNo, field)
			}
			key, value = fields[field], line
		} else {
			trimmed := strings.TrimLeft(line, " \t")
			key, value = trimmed, ""
			if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
				key, value = trimmed[:i], strings.TrimLeft(trimmed[i:], " \t")
			}
		}

		if err := st.Put(ctx, domain, mapName, []byte(key), []byte(value)); err != nil {
			return count, fmt.Errorf("%s line %d: %w", mapName, lineNo, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read %s: %w", mapName, err)
	}
	return count, nil
}

// LoadDir loads every regular file in dir as a map named after the file.
func LoadDir(ctx context.Context, st Store, domain, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read map directory: %w", err)
	}

	total := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		n, err := loadFile(ctx, st, domain, e.Name(), filepath.Join(dir, e.Name()))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func loadFile(ctx context.Context, st Store, domain, mapName, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Load(ctx, st, domain, mapName, f)
}
