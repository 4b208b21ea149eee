package job

import "fmt"

// TriggerHandle identifies an accepted trigger request before a build exists.
// When the CI server answers synchronously with a build location, BuildNumber
// is already set and no queue polling is needed.
type TriggerHandle struct {
	JobIdentity string
	QueueID     string
	BuildNumber int
}

// Resolved reports whether the handle already names a build.
func (h TriggerHandle) Resolved() bool {
	return h.BuildNumber > 0
}

// Build returns the build handle of a synchronously resolved trigger.
func (h TriggerHandle) Build() (BuildHandle, bool) {
	if !h.Resolved() {
		return BuildHandle{}, false
	}
	return BuildHandle{JobIdentity: h.JobIdentity, Number: h.BuildNumber}, true
}

func (h TriggerHandle) String() string {
	if h.Resolved() {
		return fmt.Sprintf("%s#%d", h.JobIdentity, h.BuildNumber)
	}
	return fmt.Sprintf("%s@queue/%s", h.JobIdentity, h.QueueID)
}

// BuildHandle identifies a concrete, pollable build.
type BuildHandle struct {
	JobIdentity string
	Number      int
}

func (b BuildHandle) String() string {
	return fmt.Sprintf("%s#%d", b.JobIdentity, b.Number)
}
