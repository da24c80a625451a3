package tle

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// LoadFile parses a 3-line TLE file. Objects from the file are flagged
// UserDefined when userDefined is set.
func LoadFile(path string, userDefined bool, logger *slog.Logger) ([]TrackedObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening TLE file: %w", err)
	}
	defer f.Close()

	objects, err := Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i := range objects {
		objects[i].UserDefined = userDefined
	}
	return objects, nil
}

// LoadSATCATFile reads object-type metadata from a SATCAT CSV file.
func LoadSATCATFile(path string) (map[int]ObjectType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening SATCAT file: %w", err)
	}
	defer f.Close()
	return ParseSATCAT(f)
}

// Sources names the files that make up the object catalog.
type Sources struct {
	TLEFile    string // public catalog, required
	CustomFile string // user-defined assets, optional
	SATCATFile string // object-type metadata, optional
}

// LoadDataset reads every configured source and merges them into one
// dataset. Custom assets are appended after the public catalog so they win
// on NORAD ID collisions.
func LoadDataset(src Sources, now time.Time, logger *slog.Logger) (*Dataset, error) {
	if src.TLEFile == "" {
		return nil, fmt.Errorf("no TLE file configured")
	}
	objects, err := LoadFile(src.TLEFile, false, logger)
	if err != nil {
		return nil, err
	}

	if src.CustomFile != "" {
		custom, err := LoadFile(src.CustomFile, true, logger)
		if err != nil {
			return nil, err
		}
		objects = append(objects, custom...)
	}

	if src.SATCATFile != "" {
		types, err := LoadSATCATFile(src.SATCATFile)
		if err != nil {
			return nil, err
		}
		ApplyTypes(objects, types)
	}

	ds := NewDataset(src.TLEFile, now, objects)
	logger.Info("object catalog loaded",
		"source", src.TLEFile,
		"objects", len(objects),
		"custom_file", src.CustomFile,
	)
	return ds, nil
}
