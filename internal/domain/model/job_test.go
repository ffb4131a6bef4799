//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed} {
		assert.True(t, s.Valid(), "expected %q to be valid", s)
	}
	assert.False(t, JobStatus("queued").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestJobStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		ok       bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusRunning, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestJobTypeUnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte("  Echo ")))
	assert.Equal(t, JobTypeEcho, jt)

	err := jt.UnmarshalText([]byte("   "))
	require.Error(t, err)
}

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		Type:    JobTypeScreeningSummary,
		Payload: json.RawMessage(`{"candidate_id":"c-1"}`),
	}
	require.NoError(t, valid.Validate())

	// Unknown types are accepted at creation time; runnability is decided
	// at dispatch time.
	unknown := CreateJobRequest{Type: "boom", Payload: json.RawMessage(`{}`)}
	require.NoError(t, unknown.Validate())

	missingType := CreateJobRequest{Payload: json.RawMessage(`{}`)}
	require.Error(t, missingType.Validate())

	missingPayload := CreateJobRequest{Type: JobTypeEcho}
	require.Error(t, missingPayload.Validate())

	badJSON := CreateJobRequest{Type: JobTypeEcho, Payload: json.RawMessage(`{"a":`)}
	require.Error(t, badJSON.Validate())
}
