package wal

import "fmt"

// Version is a record format version.
type Version struct {
	Major uint16
	Minor uint16
}

// Format versions. A field added at version X is written and read only
// when the record's version is at least X.
var (
	Version10 = Version{1, 0} // initial layout
	Version11 = Version{1, 1} // folder and tag colors
	Version12 = Version{1, 2} // conversation ids, reply comments, account names
	Version13 = Version{1, 3} // RGB colors, folder URLs, mountpoint reminders
	Version14 = Version{1, 4} // move constraints, lock owners, compression thresholds

	// MinVersion is the oldest version this build can read.
	MinVersion = Version10

	// CurrentVersion is the version new records are written with.
	CurrentVersion = Version14
)

// AtLeast reports whether v is the same as or newer than major.minor.
func (v Version) AtLeast(major, minor uint16) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// Compare returns -1, 0 or 1 depending on whether v is older than, equal
// to, or newer than o.
func (v Version) Compare(o Version) int {
	switch {
	case v == o:
		return 0
	case v.AtLeast(o.Major, o.Minor):
		return 1
	default:
		return -1
	}
}

// Supported reports whether records of version v can be decoded.
func (v Version) Supported() bool {
	return v.AtLeast(MinVersion.Major, MinVersion.Minor) &&
		CurrentVersion.AtLeast(v.Major, v.Minor)
}

// String returns "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
