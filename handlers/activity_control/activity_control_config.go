package activitycontrol

import "time"

type ActivityControlConfig struct {
	// How long a suspected interruption may stay unconfirmed before it is
	// dismissed as a false positive and cached playout resumes.
	ConfirmTimeout time.Duration `json:"confirm_timeout"`

	// How long to wait for cancellation acknowledgements from the generation
	// stages before forcing the gate back to idle.
	CancelGraceTimeout time.Duration `json:"cancel_grace_timeout"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() ActivityControlConfig {
	return ActivityControlConfig{
		ConfirmTimeout:     time.Second,
		CancelGraceTimeout: 2 * time.Second,
	}
}
