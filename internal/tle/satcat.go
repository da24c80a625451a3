package tle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseObjectType maps a SATCAT OBJECT_TYPE code to an ObjectType.
// Anything unrecognised is TypeUnknown.
func ParseObjectType(code string) ObjectType {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "PAY", "PAYLOAD":
		return TypePayload
	case "R/B", "ROCKET BODY":
		return TypeRocketBody
	case "DEB", "DEBRIS":
		return TypeDebris
	default:
		return TypeUnknown
	}
}

// ParseSATCAT reads a CelesTrak-style SATCAT CSV and returns object types
// keyed by NORAD ID. The header must contain NORAD_CAT_ID and OBJECT_TYPE.
func ParseSATCAT(r io.Reader) (map[int]ObjectType, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading SATCAT header: %w", err)
	}
	idCol, typeCol := -1, -1
	for i, h := range header {
		switch strings.ToUpper(strings.TrimSpace(h)) {
		case "NORAD_CAT_ID":
			idCol = i
		case "OBJECT_TYPE":
			typeCol = i
		}
	}
	if idCol < 0 || typeCol < 0 {
		return nil, fmt.Errorf("SATCAT header missing NORAD_CAT_ID or OBJECT_TYPE")
	}

	types := make(map[int]ObjectType)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading SATCAT record: %w", err)
		}
		if len(rec) <= idCol || len(rec) <= typeCol {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[idCol]))
		if err != nil {
			continue
		}
		types[id] = ParseObjectType(rec[typeCol])
	}
	return types, nil
}

// ApplyTypes sets Type on every object that has an entry in types.
// Objects without metadata keep TypeUnknown.
func ApplyTypes(objects []TrackedObject, types map[int]ObjectType) {
	for i := range objects {
		if t, ok := types[objects[i].NORADID]; ok {
			objects[i].Type = t
		} else if objects[i].Type == "" {
			objects[i].Type = TypeUnknown
		}
	}
}
