package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
)

func TestValidateCreateAccepts(t *testing.T) {
	cmd := validCreateCommand(uuid.New())
	assert.NoError(t, validateCreate(&cmd))
}

func TestValidateCreateCollectsAllViolations(t *testing.T) {
	cmd := CreateEmergencyCommand{}
	err := validateCreate(&cmd)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "type is required")
	assert.Contains(t, verr.Fields, "severity is required")
	assert.Contains(t, verr.Fields, "priority is required")
	assert.Contains(t, verr.Fields, "description is required")
	assert.Contains(t, verr.Fields, "coordinates are required")
	assert.Contains(t, verr.Fields, "patient is required")
}

func TestValidateCreateRejectsUnknownEnums(t *testing.T) {
	cmd := validCreateCommand(uuid.New())
	cmd.Type = emergency.Type("alien")
	cmd.Severity = emergency.Severity("apocalyptic")
	cmd.Priority = emergency.Priority("someday")

	err := validateCreate(&cmd)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestValidateCreateAITriageBounds(t *testing.T) {
	cmd := validCreateCommand(uuid.New())
	cmd.AITriage = &emergency.AITriage{UrgencyScore: 11, Confidence: 1.5}

	err := validateCreate(&cmd)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "ai triage urgency score must be between 1 and 10")
	assert.Contains(t, verr.Fields, "ai triage confidence must be between 0 and 1")

	cmd.AITriage = &emergency.AITriage{UrgencyScore: 7, Confidence: 0.9}
	assert.NoError(t, validateCreate(&cmd))
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		coords  emergency.Coordinates
		wantErr bool
	}{
		{"valid", emergency.Coordinates{Latitude: 18.52, Longitude: 73.85}, false},
		{"zero island", emergency.Coordinates{}, true},
		{"latitude too high", emergency.Coordinates{Latitude: 90.1, Longitude: 10}, true},
		{"longitude too low", emergency.Coordinates{Latitude: 10, Longitude: -180.1}, true},
		{"boundary", emergency.Coordinates{Latitude: -90, Longitude: 180}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCoordinates(tt.coords, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, isBlank(""))
	assert.True(t, isBlank("   \t\n"))
	assert.False(t, isBlank(" x "))
}
