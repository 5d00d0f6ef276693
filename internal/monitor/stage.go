package monitor

import "fmt"

// Stage is one discrete phase of instance readiness, inferred from the
// provisioning log. Ladder stages are ordered by advancement; within a
// monitoring session the observed stage never moves backward. StageError
// sits outside the ladder and is terminal.
type Stage int

const (
	// StageInitializing is the starting stage: the instance is booting and
	// the provisioning log may not exist yet.
	StageInitializing Stage = iota
	// StageProvisioning means the provisioning script is running.
	StageProvisioning
	// StageDownloading means models are being downloaded.
	StageDownloading
	// StageStartingApp means provisioning finished and the application is
	// starting.
	StageStartingApp
	// StageReady means the application is serving; monitoring succeeded.
	StageReady
)

// StageError is the terminal failure stage. It is reachable from any ladder
// stage and never participates in max-of-stages advancement.
const StageError Stage = -1

// String returns the stage name as reported to users and carried by events.
func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "INITIALIZING"
	case StageProvisioning:
		return "PROVISIONING"
	case StageDownloading:
		return "DOWNLOADING"
	case StageStartingApp:
		return "STARTING_APP"
	case StageReady:
		return "READY"
	case StageError:
		return "ERROR"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Terminal reports whether the stage ends a monitoring session.
func (s Stage) Terminal() bool {
	return s == StageReady || s == StageError
}

// Stages returns the ladder stages in order, least advanced first.
func Stages() []Stage {
	return []Stage{
		StageInitializing,
		StageProvisioning,
		StageDownloading,
		StageStartingApp,
		StageReady,
	}
}

// MaxStage returns the more advanced of two ladder stages.
func MaxStage(a, b Stage) Stage {
	if b > a {
		return b
	}
	return a
}
