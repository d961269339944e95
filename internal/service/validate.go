package service

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
)

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// validateCreate collects every violation before returning, so the
// caller sees the full list rather than the first failure.
func validateCreate(cmd *CreateEmergencyCommand) error {
	var fields []string

	if cmd.Type == "" {
		fields = append(fields, "type is required")
	} else if !cmd.Type.IsValid() {
		fields = append(fields, "type must be one of: medical, trauma, cardiac, respiratory, neurological, pediatric, obstetric, other")
	}

	if cmd.Severity == "" {
		fields = append(fields, "severity is required")
	} else if !cmd.Severity.IsValid() {
		fields = append(fields, "severity must be one of: low, medium, high, critical")
	}

	if cmd.Priority == "" {
		fields = append(fields, "priority is required")
	} else if !cmd.Priority.IsValid() {
		fields = append(fields, "priority must be one of: routine, urgent, emergency, immediate")
	}

	if isBlank(cmd.Description) {
		fields = append(fields, "description is required")
	}

	if verr := validateCoordinates(cmd.Location.Coords, &fields); verr != nil {
		return verr
	}

	if cmd.Patient.PatientID == uuid.Nil {
		fields = append(fields, "patient is required")
	}

	if cmd.AITriage != nil {
		if cmd.AITriage.UrgencyScore < 1 || cmd.AITriage.UrgencyScore > 10 {
			fields = append(fields, "ai triage urgency score must be between 1 and 10")
		}
		if cmd.AITriage.Confidence < 0 || cmd.AITriage.Confidence > 1 {
			fields = append(fields, "ai triage confidence must be between 0 and 1")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// validateCoordinates appends violations to fields when provided, or
// returns a ValidationError directly when fields is nil.
func validateCoordinates(c emergency.Coordinates, fields *[]string) error {
	var local []string
	if c.Latitude < -90 || c.Latitude > 90 {
		local = append(local, "latitude must be between -90 and 90")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		local = append(local, "longitude must be between -180 and 180")
	}
	if c.Latitude == 0 && c.Longitude == 0 {
		local = append(local, "coordinates are required")
	}

	if fields != nil {
		*fields = append(*fields, local...)
		return nil
	}
	if len(local) > 0 {
		return &ValidationError{Fields: local}
	}
	return nil
}
