package tle

import "time"

// ObjectType classifies a catalog object from catalog metadata.
type ObjectType string

const (
	TypePayload    ObjectType = "payload"
	TypeRocketBody ObjectType = "rocket_body"
	TypeDebris     ObjectType = "debris"
	TypeUnknown    ObjectType = "unknown"
)

// TrackedObject is a catalog object with its element set and the orbit
// quantities derived from it at ingestion.
type TrackedObject struct {
	NORADID        int
	Name           string
	Epoch          time.Time
	Line1          string
	Line2          string
	ApogeeKm       float64 // altitude above the equatorial radius
	PerigeeKm      float64 // altitude above the equatorial radius
	InclinationDeg float64
	Type           ObjectType
	UserDefined    bool
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a complete snapshot of the object catalog.
type Dataset struct {
	Source     string
	LoadedAt   time.Time
	EpochRange EpochRange
	Objects    []TrackedObject
}

// NewDataset builds a Dataset and computes its epoch range.
func NewDataset(source string, loadedAt time.Time, objects []TrackedObject) *Dataset {
	ds := &Dataset{Source: source, LoadedAt: loadedAt, Objects: objects}
	if len(objects) == 0 {
		return ds
	}
	ds.EpochRange = EpochRange{Min: objects[0].Epoch, Max: objects[0].Epoch}
	for _, o := range objects[1:] {
		if o.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = o.Epoch
		}
		if o.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = o.Epoch
		}
	}
	return ds
}
