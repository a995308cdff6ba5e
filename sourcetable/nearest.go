package sourcetable

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusMetres is the mean radius of the Earth.
const EarthRadiusMetres = 6371008.8

// MaxNearestDistanceMetres is the search radius of FindNearest.  A mount
// exactly this far away is not found.
const MaxNearestDistanceMetres = 100000.0

// Distance returns the great-circle distance in metres between two
// locations.  It returns false if either location is not a valid latitude
// and longitude.
func Distance(from, to Location) (float64, bool) {
	a := s2.LatLngFromDegrees(from.Latitude, from.Longitude)
	b := s2.LatLngFromDegrees(to.Latitude, to.Longitude)
	if !a.IsValid() || !b.IsValid() {
		return 0, false
	}
	return a.Distance(b).Radians() * EarthRadiusMetres, true
}

// FindNearest returns the mount closest to target and its distance in
// metres.  Only mounts less than MaxNearestDistanceMetres away are
// considered.  When two mounts are the same distance away, the first one
// in the sourcetable wins.  It returns false if no mount qualifies.
func FindNearest(info *ServerInfo, target Location) (MountInfo, float64, bool) {
	if info == nil {
		return MountInfo{}, 0, false
	}

	bestIndex := -1
	bestDistance := MaxNearestDistanceMetres
	for i := range info.Mounts {
		d, ok := Distance(target, info.Mounts[i].Location)
		if !ok {
			continue
		}
		if d < bestDistance {
			bestDistance = d
			bestIndex = i
		}
	}

	if bestIndex < 0 {
		return MountInfo{}, 0, false
	}

	return info.Mounts[bestIndex], bestDistance, true
}

// FindNearest is a convenience wrapper for the package function.
func (info *ServerInfo) FindNearest(latitude, longitude float64) (MountInfo, float64, bool) {
	return FindNearest(info, Location{Latitude: latitude, Longitude: longitude})
}
